// Package storage provides the firmware byte storage collaborators. The
// analysis engine only ever reads whole firmware images; uploads go through
// the same store so the path recorded on the firmware record is always a
// valid storage key.
package storage

import (
	"context"
	"errors"
)

// ErrFileNotFound is returned when a storage key does not resolve to a
// stored firmware file.
var ErrFileNotFound = errors.New("firmware file not found")

// FirmwareStore reads and writes firmware images by storage key. The user
// identity parameters exist for access logging by implementations; the
// engine passes through whatever the job carried.
type FirmwareStore interface {
	ReadFirmwareFile(ctx context.Context, path string, userID int64, username string) ([]byte, error)
	SaveFirmwareFile(ctx context.Context, path string, data []byte) error
	DeleteFirmwareFile(ctx context.Context, path string) error
}
