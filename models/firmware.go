package models

import "time"

// FirmwareStatus represents the approval state of an uploaded firmware file.
type FirmwareStatus string

const (
	FirmwareStatusDraft    FirmwareStatus = "draft"
	FirmwareStatusApproved FirmwareStatus = "approved"
	FirmwareStatusGolden   FirmwareStatus = "golden"
	FirmwareStatusArchived FirmwareStatus = "archived"
)

// FirmwareVersion represents one uploaded firmware file for an asset.
// FilePath is the storage key handed to the firmware store; FileHash is the
// SHA-256 of the stored bytes, recorded at upload time.
type FirmwareVersion struct {
	ID        int64          `json:"id"`
	AssetID   int64          `json:"asset_id"`
	Vendor    string         `json:"vendor"`
	Model     string         `json:"model"`
	Version   string         `json:"version"`
	Notes     string         `json:"notes,omitempty"`
	Status    FirmwareStatus `json:"status"`
	FilePath  string         `json:"file_path"`
	FileHash  string         `json:"file_hash"`
	FileSize  int64          `json:"file_size"`
	CreatedBy int64          `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
}
