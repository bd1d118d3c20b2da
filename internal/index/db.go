// Package index is the derived SQLite index over the event log: entry
// metadata, embedding vectors, the FTS5 keyword table, and the sync cursor.
// Everything here can be dropped and rebuilt from the log.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the index database.
type DB struct {
	*sql.DB
	Path string

	fts bool
	log zerolog.Logger
}

// Open opens (or creates) the index database at the given path, configures
// pragmas, and runs migrations.
func Open(path string, logger zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return setup(sqlDB, path, logger)
}

// OpenMemory opens an in-memory index database for testing.
func OpenMemory(logger zerolog.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return setup(sqlDB, ":memory:", logger)
}

func setup(sqlDB *sql.DB, path string, logger zerolog.Logger) (*DB, error) {
	db := &DB{DB: sqlDB, Path: path, log: logger.With().Str("component", "index").Logger()}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db.fts = db.setupFTS()
	return db, nil
}

// FTSAvailable reports whether the FTS5 keyword table could be created.
// Without it, keyword and hybrid search tiers are unavailable.
func (db *DB) FTSAvailable() bool { return db.fts }

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// setupFTS creates the FTS5 virtual table outside the migration chain so a
// build without the fts5 extension degrades instead of failing open.
func (db *DB) setupFTS() bool {
	_, err := db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			id UNINDEXED,
			title,
			body,
			tags
		)
	`)
	if err != nil {
		db.log.Warn().Err(err).Msg("fts5 unavailable, keyword search disabled")
		return false
	}
	return true
}
