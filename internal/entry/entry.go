// Package entry defines the memory entry schema: the single record type the
// evidence log stores, plus validation, identity derivation, source
// reference handling, and the derived texts the indices are built from.
package entry

import (
	"encoding/json"
	"time"
)

// Entry types.
const (
	TypeDecision   = "decision"
	TypeLesson     = "lesson"
	TypeConstraint = "constraint"
	TypeRisk       = "risk"
	TypeFact       = "fact"
)

// Classifications.
const (
	ClassHard = "hard"
	ClassSoft = "soft"
)

// Severities, S1 being the most severe.
const (
	SeverityS1 = "S1"
	SeverityS2 = "S2"
	SeverityS3 = "S3"
)

// Entry is one structured knowledge record. Rule and Implication are
// pointers so a JSON null survives a read-modify-write cycle; at least one
// of the two must be non-nil for the entry to be valid.
//
// Meta is an open extension map: unknown keys are carried verbatim through
// every load/store cycle so future writers can attach metadata without
// breaking older binaries.
type Entry struct {
	ID             string                     `json:"id"`
	Type           string                     `json:"type"`
	Classification string                     `json:"classification"`
	Severity       string                     `json:"severity,omitempty"`
	Title          string                     `json:"title"`
	Content        []string                   `json:"content"`
	Rule           *string                    `json:"rule"`
	Implication    *string                    `json:"implication"`
	Verify         string                     `json:"verify,omitempty"`
	Source         []string                   `json:"source"`
	Tags           []string                   `json:"tags,omitempty"`
	CreatedAt      string                     `json:"created_at"`
	LastVerified   string                     `json:"last_verified,omitempty"`
	Deprecated     bool                       `json:"deprecated,omitempty"`
	Meta           map[string]json.RawMessage `json:"_meta,omitempty"`
}

// CreatedTime parses the created_at timestamp. The zero time is returned
// for unparseable values; callers fall back to position ordering.
func (e *Entry) CreatedTime() time.Time {
	t, _ := ParseTime(e.CreatedAt)
	return t
}

// VerifiedTime parses last_verified, zero when absent or unparseable.
func (e *Entry) VerifiedTime() time.Time {
	t, _ := ParseTime(e.LastVerified)
	return t
}

// Confidence returns the cached confidence score from the extension map,
// or 0.5 when none has been recorded. The cache is advisory: the evolution
// analyzer recomputes the real score, this value only feeds the search
// re-rank boost.
func (e *Entry) Confidence() float64 {
	raw, ok := e.Meta["confidence"]
	if !ok {
		return 0.5
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0.5
	}
	return v
}

// SupersededBy returns the _meta.superseded_by pointer, if any.
func (e *Entry) SupersededBy() string {
	raw, ok := e.Meta["superseded_by"]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

// Marshal serializes the entry as a single JSON log line (no trailing
// newline).
func (e *Entry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses one JSON log line into an entry.
func Unmarshal(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ParseTime parses the ISO 8601 variants that appear in log lines:
// RFC 3339, a trailing Z, or a bare timestamp without zone (assumed UTC).
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errEmptyTimestamp
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: time.RFC3339, Value: s}
}

// Newer reports whether version a should win over version b under the
// last-writer-wins merge rule: newer created_at wins, and for identical or
// unparseable timestamps the later file position wins. Position means
// ordinal append order, which stays correct even after a repair reorders
// the file by timestamp.
func Newer(aCreated string, aPos int, bCreated string, bPos int) bool {
	at, aerr := ParseTime(aCreated)
	bt, berr := ParseTime(bCreated)
	switch {
	case aerr == nil && berr == nil:
		if !at.Equal(bt) {
			return at.After(bt)
		}
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return aPos > bPos
}
