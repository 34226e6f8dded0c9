package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_RoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte{0x7F, 0x45, 0x4C, 0x46, 0x02}

	require.NoError(t, store.SaveFirmwareFile(ctx, "vendor-a/fw-1.bin", data))

	got, err := store.ReadFirmwareFile(ctx, "vendor-a/fw-1.bin", 7, "operator")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, store.DeleteFirmwareFile(ctx, "vendor-a/fw-1.bin"))

	_, err = store.ReadFirmwareFile(ctx, "vendor-a/fw-1.bin", 7, "operator")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLocalStore_MissingFile(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.ReadFirmwareFile(context.Background(), "nope.bin", 1, "u")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStore(base)
	require.NoError(t, err)

	ctx := context.Background()

	// Traversal components are cleaned away; the resolved path must stay
	// inside the base directory.
	err = store.SaveFirmwareFile(ctx, "../outside.bin", []byte("x"))
	require.NoError(t, err)

	got, err := store.ReadFirmwareFile(ctx, "outside.bin", 1, "u")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

func TestLocalStore_DeleteMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = store.DeleteFirmwareFile(context.Background(), "ghost.bin")
	assert.ErrorIs(t, err, ErrFileNotFound)
}
