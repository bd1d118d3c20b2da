package entry

import "sort"

// NearDuplicates returns the ids of existing entries whose identity text
// overlaps the candidate beyond threshold, sorted by id. Deprecated entries
// and the candidate itself are skipped. Used as an advisory at append time;
// the full clustering pass lives in the evolution analyzer.
func NearDuplicates(e *Entry, existing map[string]*Entry, threshold float64) []string {
	text := DedupText(e)
	var ids []string
	for id, other := range existing {
		if id == e.ID || other.Deprecated {
			continue
		}
		if Similarity(text, DedupText(other)) >= threshold {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
