package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HillviewCap/ferrocodex-sub002/models"
)

// setupTestDB creates a temporary test database.
func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "db_test_*")
	require.NoError(t, err)

	dbPath := filepath.Join(tempDir, "test.db")
	db, err := NewDatabase("sqlite3", dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.RemoveAll(tempDir)
	}

	return db, cleanup
}

// createTestFirmware inserts a firmware record the analysis rows can hang off.
func createTestFirmware(t *testing.T, db *Database) *models.FirmwareVersion {
	t.Helper()

	fw := &models.FirmwareVersion{
		AssetID:  1,
		Vendor:   "Siemens",
		Model:    "S7-1200",
		Version:  "4.5.2",
		FilePath: "firmware/s7-1200-v4.5.2.bin",
		FileHash: "deadbeefcafe",
		FileSize: 2048,
	}
	require.NoError(t, db.CreateFirmwareVersion(fw))
	require.NotZero(t, fw.ID)
	return fw
}

func TestNewDatabase(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "db_test_*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	db, err := NewDatabase("sqlite3", filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	assert.NotNil(t, db.conn)
	assert.NotNil(t, db.migrationManager)

	assert.NoError(t, db.Ping())
	db.Close()
}

func TestNewDatabase_InvalidDriver(t *testing.T) {
	_, err := NewDatabase("invalid_driver", "test.db")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open database")
}

func TestDatabase_Close(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	assert.NoError(t, db.Close())
	// Closing again should not error.
	assert.NoError(t, db.Close())
}

func TestDatabase_MigrationsApplied(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	migrations, err := db.GetMigrationStatus()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	for _, m := range migrations {
		assert.True(t, m.Applied, "migration %s not applied", m.Version)
	}
}

func TestDatabase_MigrationsIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	// Running again must be a no-op, not a failure.
	require.NoError(t, db.RunMigrations())
}

func TestFirmwareVersion_CreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	fw := createTestFirmware(t, db)

	got, err := db.GetFirmwareVersion(fw.ID)
	require.NoError(t, err)
	assert.Equal(t, fw.Vendor, got.Vendor)
	assert.Equal(t, fw.FilePath, got.FilePath)
	assert.Equal(t, fw.FileHash, got.FileHash)
	assert.Equal(t, models.FirmwareStatusDraft, got.Status)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestFirmwareVersion_GetMissing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := db.GetFirmwareVersion(9999)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFirmwareVersion_List(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	createTestFirmware(t, db)
	createTestFirmware(t, db)

	versions, err := db.ListFirmwareVersions(10)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestAuditEvents_RecordAndList(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	fw := createTestFirmware(t, db)

	err := db.RecordAuditEvent("", models.AuditEventAnalysisStarted, fw.ID, 7, "operator", map[string]any{
		"job_id": "abc-123",
	})
	require.NoError(t, err)

	events, err := db.ListAuditEvents(fw.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.AuditEventAnalysisStarted, events[0].EventType)
	assert.Equal(t, "operator", events[0].Username)
	assert.NotEmpty(t, events[0].EventID)
	assert.Equal(t, "abc-123", events[0].Details()["job_id"])
}
