package entry

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// EmbeddingText builds the text an entry is embedded under. Field order is
// deliberate: the title is repeated for extra semantic weight, the rule and
// implication carry the actionable signal, content bullets add detail, and
// tags widen keyword coverage.
func EmbeddingText(e *Entry) string {
	parts := []string{e.Title, e.Title}

	meta := make([]string, 0, 3)
	for _, s := range []string{e.Type, e.Classification, e.Severity} {
		if s != "" {
			meta = append(meta, s)
		}
	}
	if len(meta) > 0 {
		parts = append(parts, strings.Join(meta, " "))
	}

	if e.Rule != nil && *e.Rule != "" {
		parts = append(parts, "Rule: "+*e.Rule)
	}
	if e.Implication != nil && *e.Implication != "" {
		parts = append(parts, "Impact: "+*e.Implication)
	}
	for _, item := range e.Content {
		if item != "" {
			parts = append(parts, "- "+item)
		}
	}
	if len(e.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(e.Tags, ", "))
	}
	return strings.Join(parts, "\n")
}

// FTSFields are the columns fed to the keyword index.
type FTSFields struct {
	Title string
	Body  string
	Tags  string
}

// BuildFTSFields extracts the keyword-index columns from an entry.
func BuildFTSFields(e *Entry) FTSFields {
	var body []string
	if e.Rule != nil && *e.Rule != "" {
		body = append(body, *e.Rule)
	}
	if e.Implication != nil && *e.Implication != "" {
		body = append(body, *e.Implication)
	}
	for _, item := range e.Content {
		if item != "" {
			body = append(body, item)
		}
	}
	return FTSFields{
		Title: e.Title,
		Body:  strings.Join(body, " "),
		Tags:  strings.Join(e.Tags, " "),
	}
}

// DedupText builds the short identity text used for duplicate detection:
// title, rule, and sources, skipping the long-form fields.
func DedupText(e *Entry) string {
	parts := make([]string, 0, 2+len(e.Source))
	if e.Title != "" {
		parts = append(parts, e.Title)
	}
	if e.Rule != nil && *e.Rule != "" {
		parts = append(parts, *e.Rule)
	}
	for _, src := range e.Source {
		if src != "" {
			parts = append(parts, src)
		}
	}
	return strings.Join(parts, " | ")
}

// SearchText is the flat lowercase text basic-mode search matches against.
func SearchText(e *Entry) string {
	parts := []string{e.Title}
	if e.Rule != nil {
		parts = append(parts, *e.Rule)
	}
	if e.Implication != nil {
		parts = append(parts, *e.Implication)
	}
	parts = append(parts, e.Content...)
	parts = append(parts, e.Tags...)
	return strings.ToLower(strings.Join(parts, " "))
}

// TextHash fingerprints a derived text: first 16 hex chars of its SHA-256.
// The sync engine compares it against the indexed fingerprint to skip
// unchanged entries.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// Tokenize splits text into lowercase word tokens, dropping single-character
// fragments.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 1 {
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
