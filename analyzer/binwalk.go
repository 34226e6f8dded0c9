package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/HillviewCap/ferrocodex-sub002/models"
)

// BinwalkScanner invokes the binwalk CLI to carve signatures out of a
// firmware image. The buffer is staged in a temp file because binwalk only
// reads from disk.
type BinwalkScanner struct {
	binwalkPath string
	tempDir     string
	timeout     time.Duration
}

// NewBinwalkScanner creates a binwalk-backed signature scanner.
// binwalkPath defaults to "binwalk" on PATH; tempDir defaults to the
// system temp directory.
func NewBinwalkScanner(binwalkPath, tempDir string, timeoutSeconds int) *BinwalkScanner {
	if binwalkPath == "" {
		binwalkPath = "binwalk"
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 120
	}
	return &BinwalkScanner{
		binwalkPath: binwalkPath,
		tempDir:     tempDir,
		timeout:     time.Duration(timeoutSeconds) * time.Second,
	}
}

// ValidateInstallation checks that the binwalk binary can be executed.
func (b *BinwalkScanner) ValidateInstallation(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, b.binwalkPath, "--help")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("binwalk not available at %q: %w", b.binwalkPath, err)
	}
	return nil
}

// binwalkAnalysis mirrors the relevant part of binwalk's JSON log output.
type binwalkAnalysis struct {
	Analysis struct {
		FileMap []struct {
			Offset      int64  `json:"offset"`
			Size        int64  `json:"size"`
			Description string `json:"description"`
		} `json:"file_map"`
	} `json:"Analysis"`
}

// Scan writes the buffer to a temp file, runs binwalk with a JSON log, and
// converts the file map into signature hits.
func (b *BinwalkScanner) Scan(ctx context.Context, data []byte) ([]models.SignatureHit, error) {
	tempFile, err := os.CreateTemp(b.tempDir, "fw-scan-*.bin")
	if err != nil {
		return nil, fmt.Errorf("failed to stage firmware for scan: %w", err)
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return nil, fmt.Errorf("failed to stage firmware for scan: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to stage firmware for scan: %w", err)
	}

	logPath := filepath.Join(filepath.Dir(tempFile.Name()), filepath.Base(tempFile.Name())+".json")
	defer os.Remove(logPath)

	cmdCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, b.binwalkPath, "--log", logPath, tempFile.Name())
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("binwalk scan failed: %w\nOutput: %s", err, output)
	}

	raw, err := os.ReadFile(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read binwalk log: %w", err)
	}

	var analyses []binwalkAnalysis
	if err := json.Unmarshal(raw, &analyses); err != nil {
		return nil, fmt.Errorf("failed to parse binwalk JSON output: %w", err)
	}

	var hits []models.SignatureHit
	for _, a := range analyses {
		for _, entry := range a.Analysis.FileMap {
			hits = append(hits, models.SignatureHit{
				Offset:      entry.Offset,
				Size:        entry.Size,
				Description: entry.Description,
			})
		}
	}
	return hits, nil
}
