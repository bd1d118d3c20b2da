package evolve

import (
	"context"
	"sort"

	"github.com/evlog-dev/evlog/internal/entry"
)

// Report is the combined evolution health report.
type Report struct {
	TotalEntries      int                `json:"total_entries"`
	ActiveEntries     int                `json:"active_entries"`
	DeprecatedEntries int                `json:"deprecated_entries"`
	HealthScore       float64            `json:"health_score"`
	HighConfidence    int                `json:"high_confidence"`
	MediumConfidence  int                `json:"medium_confidence"`
	LowConfidence     int                `json:"low_confidence"`
	Confidences       []Confidence       `json:"confidences"`
	Duplicates        *DuplicateReport   `json:"duplicates"`
	Deprecations      *DeprecationReport `json:"deprecations"`
	Merges            []MergeSuggestion  `json:"merges"`
}

// Analyze runs the full evolution pass: duplicates, per-entry confidence,
// deprecation candidates, and merge suggestions. The health score is the
// mean confidence across active entries.
func (a *Analyzer) Analyze(ctx context.Context, entries map[string]*entry.Entry) *Report {
	report := &Report{TotalEntries: len(entries)}

	active := make(map[string]*entry.Entry)
	for id, e := range entries {
		if e.Deprecated {
			report.DeprecatedEntries++
		} else {
			active[id] = e
		}
	}
	report.ActiveEntries = len(active)
	if report.ActiveEntries == 0 {
		report.Duplicates = &DuplicateReport{Mode: "text"}
		report.Deprecations = &DeprecationReport{}
		return report
	}

	report.Duplicates = a.Duplicates(ctx, active)

	scores := make(map[string]Confidence, len(active))
	var total float64
	for id, e := range active {
		c := a.Confidence(e)
		scores[id] = c
		total += c.Score
		switch c.Classification {
		case "high":
			report.HighConfidence++
		case "medium":
			report.MediumConfidence++
		default:
			report.LowConfidence++
		}
		report.Confidences = append(report.Confidences, c)
	}
	sort.Slice(report.Confidences, func(i, j int) bool {
		return report.Confidences[i].EntryID < report.Confidences[j].EntryID
	})
	report.HealthScore = total / float64(report.ActiveEntries)

	report.Deprecations = a.Deprecations(active, scores)
	report.Merges = a.Merges(report.Duplicates.Groups, active)
	return report
}
