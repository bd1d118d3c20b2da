package index

import (
	"fmt"
	"strings"

	"github.com/evlog-dev/evlog/internal/entry"
)

// ErrFTSUnavailable is returned by FTS operations when the fts5 extension
// could not be loaded.
var ErrFTSUnavailable = fmt.Errorf("fts5 unavailable")

// UpsertFTS replaces the keyword-index row for an entry.
func (db *DB) UpsertFTS(id string, fields entry.FTSFields) error {
	if !db.fts {
		return ErrFTSUnavailable
	}
	if _, err := db.Exec("DELETE FROM entries_fts WHERE id = ?", id); err != nil {
		return fmt.Errorf("fts delete %s: %w", id, err)
	}
	_, err := db.Exec(
		"INSERT INTO entries_fts (id, title, body, tags) VALUES (?, ?, ?, ?)",
		id, fields.Title, fields.Body, fields.Tags,
	)
	if err != nil {
		return fmt.Errorf("fts insert %s: %w", id, err)
	}
	return nil
}

// DeleteFTS removes an entry from the keyword index.
func (db *DB) DeleteFTS(id string) error {
	if !db.fts {
		return ErrFTSUnavailable
	}
	if _, err := db.Exec("DELETE FROM entries_fts WHERE id = ?", id); err != nil {
		return fmt.Errorf("fts delete %s: %w", id, err)
	}
	return nil
}

// FTSCount returns the number of rows in the keyword index.
func (db *DB) FTSCount() (int, error) {
	if !db.fts {
		return 0, nil
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM entries_fts").Scan(&n); err != nil {
		return 0, fmt.Errorf("fts count: %w", err)
	}
	return n, nil
}

// FTSHit is one keyword-index match. Score is bm25 normalized into [0, 1],
// higher is better.
type FTSHit struct {
	ID    string
	Score float64
}

// SearchFTS runs a keyword query against the FTS5 table and returns matches
// ranked by normalized bm25. The raw query is reduced to quoted tokens
// joined with OR so user input can never break the MATCH grammar.
func (db *DB) SearchFTS(query string, limit int) ([]FTSHit, error) {
	if !db.fts {
		return nil, ErrFTSUnavailable
	}
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := db.Query(`
		SELECT f.id, bm25(entries_fts)
		FROM entries_fts f
		JOIN entries e ON e.id = f.id
		WHERE entries_fts MATCH ? AND e.deprecated = 0
		ORDER BY bm25(entries_fts)
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		var rank float64
		if err := rows.Scan(&h.ID, &rank); err != nil {
			return nil, fmt.Errorf("scan fts hit: %w", err)
		}
		// bm25() returns negative values, better matches more negative.
		h.Score = -rank
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Normalize to [0, 1] against the best score in this result set.
	var best float64
	for _, h := range hits {
		if h.Score > best {
			best = h.Score
		}
	}
	if best > 0 {
		for i := range hits {
			hits[i].Score /= best
		}
	}
	return hits, nil
}

// ftsQuery sanitizes free text into an FTS5 MATCH expression: each word
// token double-quoted, tokens joined with OR.
func ftsQuery(query string) string {
	tokens := entry.Tokenize(query)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(tok, `"`, ``) + `"`
	}
	return strings.Join(quoted, " OR ")
}
