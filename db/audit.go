package db

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/HillviewCap/ferrocodex-sub002/models"
)

// RecordAuditEvent appends one analysis lifecycle event to the audit trail.
// details is serialized to JSON; an empty map is stored as '{}'.
func (db *Database) RecordAuditEvent(eventID, eventType string, firmwareVersionID, userID int64, username string, details map[string]any) error {
	if eventID == "" {
		eventID = uuid.New().String()
	}

	detailsJSON := "{}"
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		detailsJSON = string(raw)
	}

	query := `
		INSERT INTO audit_events (event_id, event_type, firmware_version_id, user_id, username, details)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := db.conn.Exec(query, eventID, eventType, firmwareVersionID, userID, username, detailsJSON); err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns audit events for one firmware version, newest
// first.
func (db *Database) ListAuditEvents(firmwareVersionID int64, limit int) ([]*models.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, event_id, event_type, firmware_version_id, user_id, username, details, created_at
		FROM audit_events
		WHERE firmware_version_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := db.conn.Query(query, firmwareVersionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		event := &models.AuditEvent{}
		err := rows.Scan(
			&event.ID, &event.EventID, &event.EventType, &event.FirmwareVersionID,
			&event.UserID, &event.Username, &event.DetailsJSON, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
