package index

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "entries: indexed metadata per log entry",
		SQL: `
CREATE TABLE entries (
    id             TEXT PRIMARY KEY,
    type           TEXT NOT NULL,
    classification TEXT NOT NULL,
    severity       TEXT NOT NULL,
    title          TEXT NOT NULL,
    created_at     TEXT NOT NULL,
    confidence     REAL NOT NULL DEFAULT 0.5,
    deprecated     INTEGER NOT NULL DEFAULT 0,
    text_hash      TEXT NOT NULL DEFAULT '',
    updated_at     INTEGER NOT NULL
);

CREATE INDEX idx_entries_severity   ON entries(severity);
CREATE INDEX idx_entries_deprecated ON entries(deprecated);
`,
	},
	{
		Version:     2,
		Description: "vectors: embedding vectors for semantic search",
		SQL: `
CREATE TABLE vectors (
    id         TEXT PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    text_hash  TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    FOREIGN KEY (id) REFERENCES entries(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     3,
		Description: "sync_state: event log cursor",
		SQL: `
CREATE TABLE sync_state (
    key         INTEGER PRIMARY KEY CHECK (key = 1),
    offset      INTEGER NOT NULL,
    fingerprint TEXT NOT NULL,
    updated_at  INTEGER NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	return version, nil
}
