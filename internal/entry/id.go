package entry

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// NewID derives a stable entry id from the entry type, its primary source
// anchor, and the content hash: "<type>-<anchor slug>-<hash8>". The id
// never changes once assigned; an updated entry keeps its id and gains a
// newer created_at.
func NewID(entryType, primarySource, contentText string) string {
	sum := sha256.Sum256([]byte(contentText))
	return entryType + "-" + anchorSlug(primarySource) + "-" + hex.EncodeToString(sum[:4])
}

// anchorSlug reduces a source reference to a lowercase [a-z0-9_] slug built
// from the referenced file's parent directory and stem ("internal/store/db.go"
// becomes "store_db"), or the commit/PR token.
func anchorSlug(src string) string {
	ref := ParseRef(src)
	raw := ref.Path
	switch ref.Kind {
	case RefCommit:
		raw = "commit"
	case RefPR:
		raw = "pr"
	case RefUnknown:
		raw = src
	}
	stem := filepath.Base(raw)
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	if parent := filepath.Base(filepath.Dir(raw)); parent != "." && parent != "/" && parent != "" {
		stem = parent + "_" + stem
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(stem) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '-' || r == '_' || r == ' ' || r == '/':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		slug = "misc"
	}
	return slug
}
