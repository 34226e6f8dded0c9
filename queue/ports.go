package queue

import (
	"context"

	"github.com/HillviewCap/ferrocodex-sub002/models"
)

// AnalysisRepository persists analysis records. db.Database is the one
// concrete implementation; tests substitute fakes.
// GetAnalysisByFirmwareVersion reports a missing row with an error matching
// db.ErrNotFound; everything else is treated as a real failure.
type AnalysisRepository interface {
	CreateAnalysis(firmwareVersionID int64) (*models.FirmwareAnalysisResult, error)
	GetAnalysisByFirmwareVersion(firmwareVersionID int64) (*models.FirmwareAnalysisResult, error)
	UpdateAnalysisStatus(id int64, status models.AnalysisStatus, errorMessage *string) error
	UpdateAnalysisResults(id int64, fileType *string, versionsJSON *string, entropy *float64, findingsJSON *string, rawResults *string) error
}

// FirmwareRepository resolves firmware records so the queue can locate the
// stored file for a job.
type FirmwareRepository interface {
	GetFirmwareVersion(id int64) (*models.FirmwareVersion, error)
}

// Analyzer runs the analysis pipeline over firmware bytes.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte) (*models.AnalysisResult, error)
}

// EventSink receives progress events as jobs move through the pipeline.
type EventSink interface {
	Publish(event models.ProgressEvent)
}

// AuditLogger records analysis lifecycle events.
type AuditLogger interface {
	RecordAuditEvent(eventID, eventType string, firmwareVersionID, userID int64, username string, details map[string]any) error
}

// Notifier is an optional collaborator told about analysis outcomes, used
// for webhook notifications. Failures are logged, never fatal.
type Notifier interface {
	AnalysisCompleted(job models.AnalysisJob, result *models.AnalysisResult)
	AnalysisFailed(job models.AnalysisJob, errorMessage string)
}
