package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// FileName is the sqlite file created inside the data directory
const FileName = "btrank.db"

// DB wraps the sqlite connection that stores fit runs
type DB struct {
	*sql.DB
	path string
}

// NewDB opens (and migrates) the run database under dataDir
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, FileName)
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// sqlite serialises writers; a single connection avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	database := &DB{DB: db, path: dbPath}
	if err := database.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("Run database initialized", "path", dbPath)
	return database, nil
}

// Path returns the sqlite file path
func (db *DB) Path() string { return db.path }

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS fit_runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			method TEXT NOT NULL,
			alpha REAL NOT NULL,
			feature_count INTEGER NOT NULL,
			comparison_count INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS fit_strengths (
			run_id TEXT NOT NULL,
			item_key INTEGER NOT NULL,
			feature_name TEXT NOT NULL,
			survey_name TEXT NOT NULL,
			strength REAL NOT NULL,
			PRIMARY KEY (run_id, item_key),
			FOREIGN KEY (run_id) REFERENCES fit_runs(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_fit_runs_created ON fit_runs(created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}
