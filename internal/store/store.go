// Package store is the SQLite build journal: one row per index generation,
// with the paths it drained, the units it compiled, and the symbols that
// changed relative to the previous generation.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for the build journal.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Open opens dbPath and migrates it.
func Open(dbPath string) (*Store, error) {
	s, err := NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS generations (
  id              TEXT PRIMARY KEY,
  seq             INTEGER NOT NULL,
  reason          TEXT NOT NULL,
  started_at      TIMESTAMP NOT NULL,
  finished_at     TIMESTAMP NOT NULL,
  units           INTEGER NOT NULL DEFAULT 0,
  entries         INTEGER NOT NULL DEFAULT 0,
  duplicates      INTEGER NOT NULL DEFAULT 0,
  sync_failures   INTEGER NOT NULL DEFAULT 0,
  error           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS generation_changes (
  id              INTEGER PRIMARY KEY,
  generation_id   TEXT NOT NULL REFERENCES generations(id) ON DELETE CASCADE,
  path            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS compilations (
  id              INTEGER PRIMARY KEY,
  generation_id   TEXT NOT NULL REFERENCES generations(id) ON DELETE CASCADE,
  unit            TEXT NOT NULL,
  ok              BOOLEAN NOT NULL,
  diagnostics     TEXT NOT NULL DEFAULT '[]',
  duration_ms     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS symbol_changes (
  id              INTEGER PRIMARY KEY,
  generation_id   TEXT NOT NULL REFERENCES generations(id) ON DELETE CASCADE,
  doc_id          TEXT NOT NULL,
  change          TEXT NOT NULL,
  patch           TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_generations_seq ON generations(seq);
CREATE INDEX IF NOT EXISTS idx_generation_changes_gen ON generation_changes(generation_id);
CREATE INDEX IF NOT EXISTS idx_compilations_gen ON compilations(generation_id);
CREATE INDEX IF NOT EXISTS idx_symbol_changes_gen ON symbol_changes(generation_id);
CREATE INDEX IF NOT EXISTS idx_symbol_changes_doc ON symbol_changes(doc_id);
`
