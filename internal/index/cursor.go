package index

import (
	"database/sql"
	"fmt"
	"time"
)

// Cursor marks how far into the event log the index has synced: the byte
// offset of the next unread line and a fingerprint of the bytes before it.
type Cursor struct {
	Offset      int64
	Fingerprint string
}

// Cursor returns the stored sync cursor. A zero cursor means no sync has
// completed yet and the log must be read from the start.
func (db *DB) Cursor() (Cursor, error) {
	var c Cursor
	err := db.QueryRow("SELECT offset, fingerprint FROM sync_state WHERE key = 1").
		Scan(&c.Offset, &c.Fingerprint)
	if err == sql.ErrNoRows {
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("read cursor: %w", err)
	}
	return c, nil
}

// SetCursor stores the sync cursor, replacing any previous value.
func (db *DB) SetCursor(c Cursor) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (key, offset, fingerprint, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			offset = excluded.offset,
			fingerprint = excluded.fingerprint,
			updated_at = excluded.updated_at
	`, c.Offset, c.Fingerprint, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// ResetCursor clears the sync cursor, forcing the next sync to rebuild from
// the start of the log.
func (db *DB) ResetCursor() error {
	if _, err := db.Exec("DELETE FROM sync_state"); err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}
	return nil
}
