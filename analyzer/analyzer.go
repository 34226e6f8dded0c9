package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/HillviewCap/ferrocodex-sub002/models"
)

// DefaultTimeout bounds a full analysis pipeline run.
const DefaultTimeout = 300 * time.Second

// ErrAnalysisTimeout is returned when the pipeline exceeds its deadline.
var ErrAnalysisTimeout = errors.New("firmware analysis timed out")

// SignatureScanner is the external binary-carving collaborator. It locates
// known file/container structures embedded at arbitrary offsets in the
// buffer and returns one hit per signature match.
type SignatureScanner interface {
	Scan(ctx context.Context, data []byte) ([]models.SignatureHit, error)
}

// Analyzer runs the firmware analysis pipeline. All stages are pure
// functions over the input buffer; the only external call is the signature
// scan. Safe for concurrent use.
type Analyzer struct {
	scanner SignatureScanner
	timeout time.Duration
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithTimeout overrides the default pipeline timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithSignatureScanner sets the binary-carving collaborator. Without one,
// the signature-scan stage is skipped and raw results stay empty.
func WithSignatureScanner(s SignatureScanner) Option {
	return func(a *Analyzer) { a.scanner = s }
}

// New creates an Analyzer with the default 300 second timeout.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs every pipeline stage over the buffer and assembles the
// result. The whole pipeline runs under a hard timeout; exceeding it
// returns ErrAnalysisTimeout rather than a generic failure.
func (a *Analyzer) Analyze(ctx context.Context, data []byte) (*models.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type outcome struct {
		result *models.AnalysisResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := a.runPipeline(ctx, data)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrAnalysisTimeout
		}
		return nil, ctx.Err()
	}
}

func (a *Analyzer) runPipeline(ctx context.Context, data []byte) (*models.AnalysisResult, error) {
	fileType := DetectFileType(data)
	entropy := CalculateEntropy(data)
	versions := ExtractVersionStrings(data)
	findings := PerformSecurityChecks(data, fileType, entropy)

	result := &models.AnalysisResult{
		FileType:         fileType,
		EntropyScore:     entropy,
		DetectedVersions: versions,
		SecurityFindings: findings,
	}

	if a.scanner != nil {
		hits, err := a.scanner.Scan(ctx, data)
		if err != nil {
			// A missing or broken carving backend degrades the scan, it
			// does not fail the analysis. The heuristic stages already ran.
			log.Printf("signature scan failed, continuing without carving results: %v", err)
		} else {
			result.SignatureHits = hits
		}
	}

	return result, nil
}

// EncodeRawResults serializes signature hits for the raw_results column.
// The engine treats the payload as opaque; only the scanner's contract
// shapes it.
func EncodeRawResults(hits []models.SignatureHit) (string, error) {
	if len(hits) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(hits)
	if err != nil {
		return "", fmt.Errorf("failed to encode signature hits: %w", err)
	}
	return string(raw), nil
}
