package index

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/evlog-dev/evlog/internal/entry"
)

// UpsertEntry stores or replaces the indexed metadata row for e. textHash is
// the fingerprint of the entry's derived embedding text; sync uses it to
// decide whether re-embedding is needed.
func (db *DB) UpsertEntry(e *entry.Entry, textHash string) error {
	now := time.Now().UnixMilli()
	deprecated := 0
	if e.Deprecated {
		deprecated = 1
	}
	_, err := db.Exec(`
		INSERT INTO entries (id, type, classification, severity, title, created_at, confidence, deprecated, text_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			classification = excluded.classification,
			severity = excluded.severity,
			title = excluded.title,
			created_at = excluded.created_at,
			confidence = excluded.confidence,
			deprecated = excluded.deprecated,
			text_hash = excluded.text_hash,
			updated_at = excluded.updated_at
	`, e.ID, e.Type, e.Classification, e.Severity, e.Title, e.CreatedAt,
		e.Confidence(), deprecated, textHash, now)
	if err != nil {
		return fmt.Errorf("upsert entry %s: %w", e.ID, err)
	}
	return nil
}

// TextHash returns the stored derived-text fingerprint for an entry, or ""
// if the entry is not indexed yet.
func (db *DB) TextHash(id string) (string, error) {
	var h string
	err := db.QueryRow("SELECT text_hash FROM entries WHERE id = ?", id).Scan(&h)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("text hash %s: %w", id, err)
	}
	return h, nil
}

// MarkDeprecated flags an indexed entry as deprecated so search skips it.
func (db *DB) MarkDeprecated(id string) error {
	_, err := db.Exec("UPDATE entries SET deprecated = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark deprecated %s: %w", id, err)
	}
	return nil
}

// EntryCount returns total and active (non-deprecated) indexed entry counts.
func (db *DB) EntryCount() (total, active int, err error) {
	err = db.QueryRow("SELECT COUNT(*), COUNT(*) FILTER (WHERE deprecated = 0) FROM entries").Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("entry count: %w", err)
	}
	return total, active, nil
}

// Clear drops all indexed rows. Used before a full rebuild.
func (db *DB) Clear() error {
	stmts := []string{
		"DELETE FROM vectors",
		"DELETE FROM entries",
		"DELETE FROM sync_state",
	}
	if db.fts {
		stmts = append(stmts, "DELETE FROM entries_fts")
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
	}
	return nil
}
