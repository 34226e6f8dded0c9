package models

import (
	"encoding/json"
	"time"
)

// AnalysisStatus represents the persisted lifecycle state of one firmware
// version's analysis. Transitions only move forward:
// pending -> in_progress -> completed | failed.
type AnalysisStatus string

const (
	AnalysisStatusPending    AnalysisStatus = "pending"
	AnalysisStatusInProgress AnalysisStatus = "in_progress"
	AnalysisStatusCompleted  AnalysisStatus = "completed"
	AnalysisStatusFailed     AnalysisStatus = "failed"
)

// IsTerminal reports whether the status is a terminal state.
func (s AnalysisStatus) IsTerminal() bool {
	return s == AnalysisStatusCompleted || s == AnalysisStatusFailed
}

// Severity levels for security findings.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// SecurityFinding represents a potential security concern produced by
// heuristic pattern matching, not a definitive vulnerability determination.
type SecurityFinding struct {
	Severity    Severity `json:"severity"`
	FindingType string   `json:"finding_type"`
	Description string   `json:"description"`
	Offset      *int64   `json:"offset,omitempty"`
}

// SignatureHit is one result from the external binary-carving scan.
type SignatureHit struct {
	Offset      int64  `json:"offset"`
	Description string `json:"description"`
	Size        int64  `json:"size"`
}

// AnalysisResult is the in-memory output of the analyzer pipeline, produced
// before anything is persisted.
type AnalysisResult struct {
	FileType         string            `json:"file_type"`
	EntropyScore     float64           `json:"entropy_score"`
	DetectedVersions []string          `json:"detected_versions"`
	SecurityFindings []SecurityFinding `json:"security_findings"`
	SignatureHits    []SignatureHit    `json:"signature_hits"`
}

// FindingCountBySeverity tallies findings per severity level.
func (r *AnalysisResult) FindingCountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range r.SecurityFindings {
		counts[f.Severity]++
	}
	return counts
}

// AnalysisJob is the transient submission unit placed on the queue. It is
// never persisted; JobID correlates audit events for one run.
type AnalysisJob struct {
	JobID             string `json:"job_id"`
	FirmwareVersionID int64  `json:"firmware_version_id"`
	UserID            int64  `json:"user_id"`
	Username          string `json:"username"`
}

// ProgressEvent is broadcast to all listeners as a job moves through the
// analysis pipeline. Events for a single firmware version are ordered;
// no ordering holds across firmware versions.
type ProgressEvent struct {
	FirmwareVersionID int64  `json:"firmware_version_id"`
	Status            string `json:"status"`
	Progress          *int   `json:"progress,omitempty"`
	Message           string `json:"message,omitempty"`
}

// FirmwareAnalysisResult represents one row in firmware_analysis_results.
// The variable-shape fields are stored as JSON text and exposed through
// typed accessors.
type FirmwareAnalysisResult struct {
	ID                   int64          `json:"id"`
	FirmwareVersionID    int64          `json:"firmware_version_id"`
	Status               AnalysisStatus `json:"analysis_status"`
	FileType             *string        `json:"file_type,omitempty"`
	DetectedVersionsJSON *string        `json:"-"`
	EntropyScore         *float64       `json:"entropy_score,omitempty"`
	SecurityFindingsJSON *string        `json:"-"`
	RawResults           *string        `json:"raw_results,omitempty"`
	StartedAt            *time.Time     `json:"started_at,omitempty"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage         *string        `json:"error_message,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}

// DetectedVersions decodes the JSON-encoded version list. A missing or
// malformed column yields a nil slice.
func (r *FirmwareAnalysisResult) DetectedVersions() []string {
	if r.DetectedVersionsJSON == nil || *r.DetectedVersionsJSON == "" {
		return nil
	}
	var versions []string
	if err := json.Unmarshal([]byte(*r.DetectedVersionsJSON), &versions); err != nil {
		return nil
	}
	return versions
}

// SecurityFindings decodes the JSON-encoded findings list.
func (r *FirmwareAnalysisResult) SecurityFindings() []SecurityFinding {
	if r.SecurityFindingsJSON == nil || *r.SecurityFindingsJSON == "" {
		return nil
	}
	var findings []SecurityFinding
	if err := json.Unmarshal([]byte(*r.SecurityFindingsJSON), &findings); err != nil {
		return nil
	}
	return findings
}

// MarshalJSON flattens the JSON text columns into their decoded forms so API
// responses carry structured data instead of nested JSON strings.
func (r *FirmwareAnalysisResult) MarshalJSON() ([]byte, error) {
	type alias FirmwareAnalysisResult
	return json.Marshal(struct {
		*alias
		DetectedVersions []string          `json:"detected_versions,omitempty"`
		SecurityFindings []SecurityFinding `json:"security_findings,omitempty"`
	}{
		alias:            (*alias)(r),
		DetectedVersions: r.DetectedVersions(),
		SecurityFindings: r.SecurityFindings(),
	})
}
