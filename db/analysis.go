package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/HillviewCap/ferrocodex-sub002/models"
)

const analysisColumns = `id, firmware_version_id, analysis_status, file_type,
	       detected_versions, entropy_score, security_findings, raw_results,
	       started_at, completed_at, error_message, created_at`

// CreateAnalysis inserts a new pending analysis row for a firmware version.
// The unique constraint on firmware_version_id means calling this twice for
// the same firmware version fails; re-runs must fetch and reuse the
// existing row instead.
func (db *Database) CreateAnalysis(firmwareVersionID int64) (*models.FirmwareAnalysisResult, error) {
	query := `
		INSERT INTO firmware_analysis_results (firmware_version_id, analysis_status)
		VALUES (?, ?)
	`

	result, err := db.conn.Exec(query, firmwareVersionID, models.AnalysisStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis record ID: %w", err)
	}

	return db.GetAnalysisByID(id)
}

// GetAnalysisByID retrieves an analysis record by its primary key.
func (db *Database) GetAnalysisByID(id int64) (*models.FirmwareAnalysisResult, error) {
	query := fmt.Sprintf(`SELECT %s FROM firmware_analysis_results WHERE id = ?`, analysisColumns)
	return db.scanAnalysis(db.conn.QueryRow(query, id))
}

// GetAnalysisByFirmwareVersion retrieves the analysis record for a firmware
// version. Returns ErrNotFound when no analysis exists yet.
func (db *Database) GetAnalysisByFirmwareVersion(firmwareVersionID int64) (*models.FirmwareAnalysisResult, error) {
	query := fmt.Sprintf(`SELECT %s FROM firmware_analysis_results WHERE firmware_version_id = ?`, analysisColumns)
	return db.scanAnalysis(db.conn.QueryRow(query, firmwareVersionID))
}

// UpdateAnalysisStatus moves an analysis record to a new status. The target
// status decides which timestamp columns are touched: InProgress stamps
// started_at (and clears any previous terminal state, supporting re-runs);
// Completed stamps completed_at; Failed stamps completed_at and records the
// error message. Any other status updates the status column alone.
func (db *Database) UpdateAnalysisStatus(id int64, status models.AnalysisStatus, errorMessage *string) error {
	var (
		query string
		args  []any
	)

	switch status {
	case models.AnalysisStatusInProgress:
		query = `
			UPDATE firmware_analysis_results
			SET analysis_status = ?, started_at = ?, completed_at = NULL, error_message = NULL
			WHERE id = ?
		`
		args = []any{status, time.Now().UTC(), id}
	case models.AnalysisStatusCompleted:
		query = `
			UPDATE firmware_analysis_results
			SET analysis_status = ?, completed_at = ?
			WHERE id = ?
		`
		args = []any{status, time.Now().UTC(), id}
	case models.AnalysisStatusFailed:
		msg := ""
		if errorMessage != nil {
			msg = *errorMessage
		}
		query = `
			UPDATE firmware_analysis_results
			SET analysis_status = ?, completed_at = ?, error_message = ?
			WHERE id = ?
		`
		args = []any{status, time.Now().UTC(), msg, id}
	default:
		query = `UPDATE firmware_analysis_results SET analysis_status = ? WHERE id = ?`
		args = []any{status, id}
	}

	result, err := db.conn.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update analysis status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update analysis status: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("analysis record %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateAnalysisResults writes the full result set of a successful analysis
// in one statement. Partial persistence is not supported; the caller pairs
// this with the terminal status update.
func (db *Database) UpdateAnalysisResults(id int64, fileType *string, versionsJSON *string, entropy *float64, findingsJSON *string, rawResults *string) error {
	query := `
		UPDATE firmware_analysis_results
		SET file_type = ?, detected_versions = ?, entropy_score = ?,
		    security_findings = ?, raw_results = ?
		WHERE id = ?
	`

	result, err := db.conn.Exec(query, fileType, versionsJSON, entropy, findingsJSON, rawResults, id)
	if err != nil {
		return fmt.Errorf("failed to update analysis results: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update analysis results: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("analysis record %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListRecentAnalyses returns the most recently created analysis records.
func (db *Database) ListRecentAnalyses(limit int) ([]*models.FirmwareAnalysisResult, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
		SELECT %s FROM firmware_analysis_results
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, analysisColumns)

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var results []*models.FirmwareAnalysisResult
	for rows.Next() {
		record, err := db.scanAnalysisRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, record)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *Database) scanAnalysis(row *sql.Row) (*models.FirmwareAnalysisResult, error) {
	record, err := db.scanAnalysisRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("analysis record: %w", ErrNotFound)
	}
	return record, err
}

func (db *Database) scanAnalysisRow(row rowScanner) (*models.FirmwareAnalysisResult, error) {
	var (
		record       models.FirmwareAnalysisResult
		fileType     sql.NullString
		versions     sql.NullString
		entropy      sql.NullFloat64
		findings     sql.NullString
		rawResults   sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		errorMessage sql.NullString
	)

	err := row.Scan(
		&record.ID, &record.FirmwareVersionID, &record.Status, &fileType,
		&versions, &entropy, &findings, &rawResults,
		&startedAt, &completedAt, &errorMessage, &record.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan analysis record: %w", err)
	}

	if fileType.Valid {
		record.FileType = &fileType.String
	}
	if versions.Valid {
		record.DetectedVersionsJSON = &versions.String
	}
	if entropy.Valid {
		record.EntropyScore = &entropy.Float64
	}
	if findings.Valid {
		record.SecurityFindingsJSON = &findings.String
	}
	if rawResults.Valid {
		record.RawResults = &rawResults.String
	}
	if startedAt.Valid {
		record.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		record.CompletedAt = &completedAt.Time
	}
	if errorMessage.Valid {
		record.ErrorMessage = &errorMessage.String
	}

	return &record, nil
}
