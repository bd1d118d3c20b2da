package index

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"
)

// encodeEmbedding converts a []float32 to a binary BLOB (4 bytes per value).
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float32.
func decodeEmbedding(buf []byte) []float32 {
	n := len(buf) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// UpsertVector stores or replaces the embedding for an entry.
func (db *DB) UpsertVector(id string, embedding []float32, model, textHash string) error {
	now := time.Now().UnixMilli()
	blob := encodeEmbedding(embedding)
	_, err := db.Exec(`
		INSERT INTO vectors (id, embedding, model, dimensions, text_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			embedding = excluded.embedding,
			model = excluded.model,
			dimensions = excluded.dimensions,
			text_hash = excluded.text_hash,
			created_at = excluded.created_at
	`, id, blob, model, len(embedding), textHash, now)
	if err != nil {
		return fmt.Errorf("upsert vector %s: %w", id, err)
	}
	return nil
}

// VectorTextHash returns the text fingerprint the stored embedding was
// computed from, or "" when the entry has no vector. This is the hash the
// sync engine keys re-embedding on: the entries table records what was
// indexed, the vectors table records what was actually embedded.
func (db *DB) VectorTextHash(id string) (string, error) {
	var hash string
	err := db.QueryRow("SELECT text_hash FROM vectors WHERE id = ?", id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("vector text hash %s: %w", id, err)
	}
	return hash, nil
}

// GetVector returns the embedding for an entry, or nil if not stored.
func (db *DB) GetVector(id string) ([]float32, error) {
	var blob []byte
	err := db.QueryRow("SELECT embedding FROM vectors WHERE id = ?", id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector %s: %w", id, err)
	}
	return decodeEmbedding(blob), nil
}

// VectorCount returns the number of stored embeddings.
func (db *DB) VectorCount() (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM vectors").Scan(&n); err != nil {
		return 0, fmt.Errorf("vector count: %w", err)
	}
	return n, nil
}

// VectorHit is one result of a brute-force vector scan.
type VectorHit struct {
	ID         string
	Similarity float64 // raw cosine in [-1, 1]
}

// SearchVectors scans all active embeddings, ranks them by cosine similarity
// to the query vector, and returns the top limit hits.
func (db *DB) SearchVectors(query []float32, limit int) ([]VectorHit, error) {
	rows, err := db.Query(`
		SELECT v.id, v.embedding
		FROM vectors v
		JOIN entries e ON e.id = v.id
		WHERE e.deprecated = 0
	`)
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		vec := decodeEmbedding(blob)
		if len(vec) != len(query) {
			continue
		}
		hits = append(hits, VectorHit{ID: id, Similarity: CosineSimilarity(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
