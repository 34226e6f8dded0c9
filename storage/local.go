package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps firmware images on the local filesystem under a single
// base directory. Keys are relative paths; anything escaping the base
// directory is rejected.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates the base directory if needed.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{baseDir: abs}, nil
}

// resolve maps a storage key to an absolute path confined to the base dir.
func (s *LocalStore) resolve(key string) (string, error) {
	cleaned := filepath.Clean("/" + key)
	full := filepath.Join(s.baseDir, cleaned)
	if full != s.baseDir && !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("storage key %q escapes the storage directory", key)
	}
	return full, nil
}

// ReadFirmwareFile reads a whole firmware image into memory.
func (s *LocalStore) ReadFirmwareFile(ctx context.Context, path string, userID int64, username string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%q: %w", path, ErrFileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware file %q: %w", path, err)
	}

	log.Printf("firmware file %q read (%d bytes) for user %s (%d)", path, len(data), username, userID)
	return data, nil
}

// SaveFirmwareFile writes a firmware image under the given key.
func (s *LocalStore) SaveFirmwareFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("failed to create firmware directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return fmt.Errorf("failed to write firmware file %q: %w", path, err)
	}
	return nil
}

// DeleteFirmwareFile removes a stored firmware image.
func (s *LocalStore) DeleteFirmwareFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%q: %w", path, ErrFileNotFound)
		}
		return fmt.Errorf("failed to delete firmware file %q: %w", path, err)
	}
	return nil
}
