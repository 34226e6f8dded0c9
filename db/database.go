package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Database wraps the SQL connection pool and the repositories built on it.
// The pool is handed to every consumer explicitly; nothing reaches for a
// global handle.
type Database struct {
	conn             *sql.DB
	migrationManager *MigrationManager
}

// NewDatabase opens a database connection, configures the pool, and runs
// all pending migrations.
func NewDatabase(driverName, dataSourceName string) (*Database, error) {
	conn, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Cascade deletes from firmware_versions depend on this pragma.
	if driverName == "sqlite3" {
		if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	db := &Database{
		conn:             conn,
		migrationManager: NewMigrationManager(conn),
	}

	if err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *Database) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Ping verifies the connection is alive.
func (db *Database) Ping() error {
	return db.conn.Ping()
}

// RunMigrations runs all pending database migrations.
func (db *Database) RunMigrations() error {
	return db.migrationManager.Migrate()
}

// GetMigrationStatus returns the current migration status.
func (db *Database) GetMigrationStatus() ([]Migration, error) {
	return db.migrationManager.GetMigrationStatus()
}

// BeginTransaction starts a new database transaction.
func (db *Database) BeginTransaction() (*sql.Tx, error) {
	return db.conn.Begin()
}
