// Package store implements the governance metadata and time-series store on
// SQLite, plus the append-only reasoning log. The core engine only reads and
// queries catalog entities and appends reasoning events; rows in the event
// log are never updated or deleted outside the explicit reset operation.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"datasteward/internal/logging"

	_ "modernc.org/sqlite"
)

// LocalStore wraps the SQLite database holding the governance catalog,
// the daily quality scores, pipeline lineage, and the reasoning event log.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("LocalStore initialized at %s", path)
	return store, nil
}

// initialize creates the required tables (idempotent).
func (s *LocalStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS concepts (
		concept_id  TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		criticality REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rules (
		rule_id     TEXT PRIMARY KEY,
		concept_id  TEXT NOT NULL,
		description TEXT NOT NULL,
		threshold   REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS elements (
		element_id TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		concept_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scores (
		date       TEXT NOT NULL,
		element_id TEXT NOT NULL,
		score      REAL NOT NULL,
		PRIMARY KEY (date, element_id)
	);
	CREATE INDEX IF NOT EXISTS idx_scores_date ON scores(date);

	CREATE TABLE IF NOT EXISTS lineage (
		model_name  TEXT NOT NULL,
		column_name TEXT NOT NULL,
		element_id  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lineage_element ON lineage(element_id);

	CREATE TABLE IF NOT EXISTS sql_models (
		model_name TEXT PRIMARY KEY,
		sql_text   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS event_log (
		event_id    TEXT PRIMARY KEY,
		timestamp   TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		entity_name TEXT NOT NULL,
		context     TEXT NOT NULL,
		metrics     TEXT NOT NULL,
		explanation TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_event_log_type ON event_log(event_type);
	CREATE INDEX IF NOT EXISTS idx_event_log_entity ON event_log(entity_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// GetDB exposes the underlying handle for tests and administration.
func (s *LocalStore) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *LocalStore) Close() error {
	return s.db.Close()
}
