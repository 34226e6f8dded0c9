package models

import (
	"encoding/json"
	"time"
)

// Audit event types emitted by the analysis engine.
const (
	AuditEventAnalysisStarted   = "firmware_analysis_started"
	AuditEventAnalysisCompleted = "firmware_analysis_completed"
	AuditEventAnalysisFailed    = "firmware_analysis_failed"
)

// AuditEvent represents one row in the append-only audit_events table.
// EventID is a UUID correlating every event of a single analysis run.
type AuditEvent struct {
	ID                int64     `json:"id"`
	EventID           string    `json:"event_id"`
	EventType         string    `json:"event_type"`
	FirmwareVersionID int64     `json:"firmware_version_id"`
	UserID            int64     `json:"user_id"`
	Username          string    `json:"username"`
	DetailsJSON       string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// Details decodes the JSON details column. Returns an empty map when the
// column is empty or malformed.
func (e *AuditEvent) Details() map[string]any {
	details := make(map[string]any)
	if e.DetailsJSON == "" {
		return details
	}
	if err := json.Unmarshal([]byte(e.DetailsJSON), &details); err != nil {
		return map[string]any{}
	}
	return details
}
