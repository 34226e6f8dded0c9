package db

import (
	"database/sql"
	"fmt"

	"github.com/HillviewCap/ferrocodex-sub002/models"
)

// CreateFirmwareVersion records an uploaded firmware file.
func (db *Database) CreateFirmwareVersion(fw *models.FirmwareVersion) error {
	if fw.Status == "" {
		fw.Status = models.FirmwareStatusDraft
	}
	query := `
		INSERT INTO firmware_versions
			(asset_id, vendor, model, version, notes, status, file_path, file_hash, file_size, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.conn.Exec(query, fw.AssetID, fw.Vendor, fw.Model, fw.Version,
		fw.Notes, fw.Status, fw.FilePath, fw.FileHash, fw.FileSize, fw.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to create firmware version: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get firmware version ID: %w", err)
	}
	fw.ID = id
	return nil
}

// GetFirmwareVersion retrieves a firmware record by ID. Returns ErrNotFound
// when the firmware does not exist.
func (db *Database) GetFirmwareVersion(id int64) (*models.FirmwareVersion, error) {
	query := `
		SELECT id, asset_id, vendor, model, version, notes, status,
		       file_path, file_hash, file_size, created_by, created_at
		FROM firmware_versions WHERE id = ?
	`

	fw := &models.FirmwareVersion{}
	err := db.conn.QueryRow(query, id).Scan(
		&fw.ID, &fw.AssetID, &fw.Vendor, &fw.Model, &fw.Version, &fw.Notes,
		&fw.Status, &fw.FilePath, &fw.FileHash, &fw.FileSize, &fw.CreatedBy,
		&fw.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("firmware version %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get firmware version: %w", err)
	}
	return fw, nil
}

// ListFirmwareVersions returns firmware records, newest first.
func (db *Database) ListFirmwareVersions(limit int) ([]*models.FirmwareVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, asset_id, vendor, model, version, notes, status,
		       file_path, file_hash, file_size, created_by, created_at
		FROM firmware_versions
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list firmware versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.FirmwareVersion
	for rows.Next() {
		fw := &models.FirmwareVersion{}
		err := rows.Scan(
			&fw.ID, &fw.AssetID, &fw.Vendor, &fw.Model, &fw.Version, &fw.Notes,
			&fw.Status, &fw.FilePath, &fw.FileHash, &fw.FileSize, &fw.CreatedBy,
			&fw.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan firmware version: %w", err)
		}
		versions = append(versions, fw)
	}
	return versions, rows.Err()
}

// DeleteFirmwareVersion removes a firmware record; the analysis row for it
// is removed by the cascade.
func (db *Database) DeleteFirmwareVersion(id int64) error {
	result, err := db.conn.Exec(`DELETE FROM firmware_versions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete firmware version: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete firmware version: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("firmware version %d: %w", id, ErrNotFound)
	}
	return nil
}
