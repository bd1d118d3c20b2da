package evolve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/evlog-dev/evlog/internal/entry"
)

// MergeSuggestion recommends collapsing a duplicate group into one entry.
type MergeSuggestion struct {
	KeepID          string   `json:"keep_id"`
	DeprecateIDs    []string `json:"deprecate_ids"`
	Reason          string   `json:"reason"`
	GroupSimilarity float64  `json:"group_similarity"`
}

// Merges turns duplicate groups into merge suggestions: one entry to keep,
// the rest to deprecate.
func (a *Analyzer) Merges(groups []DuplicateGroup, entries map[string]*entry.Entry) []MergeSuggestion {
	var suggestions []MergeSuggestion
	for _, g := range groups {
		if len(g.MemberIDs) < 2 {
			continue
		}
		ranked := rankForMerge(g.MemberIDs, entries)
		keep := ranked[0]

		var parts []string
		if e := entries[keep]; e != nil {
			if e.Severity != "" {
				parts = append(parts, fmt.Sprintf("highest severity (%s)", e.Severity))
			}
			if len(e.Source) > 1 {
				parts = append(parts, fmt.Sprintf("most sources (%d)", len(e.Source)))
			}
			if e.LastVerified != "" {
				parts = append(parts, "recently verified")
			}
		}
		if len(parts) == 0 {
			parts = append(parts, "oldest entry")
		}

		suggestions = append(suggestions, MergeSuggestion{
			KeepID:          keep,
			DeprecateIDs:    ranked[1:],
			Reason:          fmt.Sprintf("keep %s: %s", keep, strings.Join(parts, ", ")),
			GroupSimilarity: g.AvgSimilarity,
		})
	}
	return suggestions
}

// rankForMerge orders group members best-first: higher severity, then more
// sources, then more recently verified, then older creation date.
func rankForMerge(ids []string, entries map[string]*entry.Entry) []string {
	ranked := append([]string(nil), ids...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := entries[ranked[i]], entries[ranked[j]]
		if a == nil || b == nil {
			return a != nil
		}
		if ra, rb := severityRank(a.Severity), severityRank(b.Severity); ra != rb {
			return ra > rb
		}
		if len(a.Source) != len(b.Source) {
			return len(a.Source) > len(b.Source)
		}
		va, vb := a.VerifiedTime(), b.VerifiedTime()
		if !va.Equal(vb) {
			return va.After(vb)
		}
		ca, cb := a.CreatedTime(), b.CreatedTime()
		if !ca.Equal(cb) {
			return ca.Before(cb)
		}
		return ranked[i] < ranked[j]
	})
	return ranked
}
