package evolve

import (
	"fmt"
	"sort"

	"github.com/evlog-dev/evlog/internal/entry"
)

// DeprecationCandidate is one entry recommended for deprecation or
// re-verification.
type DeprecationCandidate struct {
	EntryID    string   `json:"entry_id"`
	Title      string   `json:"title"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
	Action     string   `json:"action"` // "deprecate" or "reverify"
}

// DeprecationReport lists candidates worst-confidence first.
type DeprecationReport struct {
	TotalEntries int                    `json:"total_entries"`
	Candidates   []DeprecationCandidate `json:"candidates"`
}

// Deprecations flags active entries that look dead: confidence below the
// floor, every file-based source gone, staleness past twice the threshold,
// or a superseded_by pointer without the deprecated flag. The scores map is
// an optional cache from a prior Confidence pass.
func (a *Analyzer) Deprecations(entries map[string]*entry.Entry, scores map[string]Confidence) *DeprecationReport {
	report := &DeprecationReport{}

	ids := make([]string, 0, len(entries))
	for id, e := range entries {
		if !e.Deprecated {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	report.TotalEntries = len(ids)

	for _, id := range ids {
		e := entries[id]
		var reasons []string

		conf, ok := scores[id]
		if !ok {
			conf = a.Confidence(e)
		}
		if conf.Score < a.cfg.DeprecationFloor {
			reasons = append(reasons, fmt.Sprintf("low confidence (%.2f < %.2f)", conf.Score, a.cfg.DeprecationFloor))
		}

		sourcesGone := a.allFileSourcesInvalid(e)
		if sourcesGone {
			reasons = append(reasons, "all file-based sources invalid")
		}

		if days := a.effectiveAgeDays(e); days > a.staleness*2 {
			reasons = append(reasons, fmt.Sprintf("very stale (%dd > %dd)", days, a.staleness*2))
		}

		superseded := e.SupersededBy()
		if superseded != "" {
			reasons = append(reasons, fmt.Sprintf("superseded by %s but not deprecated", superseded))
		}

		if len(reasons) == 0 {
			continue
		}

		action := "reverify"
		if (conf.Score < a.cfg.DeprecationFloor && sourcesGone) || superseded != "" {
			action = "deprecate"
		}

		report.Candidates = append(report.Candidates, DeprecationCandidate{
			EntryID:    id,
			Title:      e.Title,
			Confidence: conf.Score,
			Reasons:    reasons,
			Action:     action,
		})
	}

	sort.SliceStable(report.Candidates, func(i, j int) bool {
		return report.Candidates[i].Confidence < report.Candidates[j].Confidence
	})
	return report
}

// allFileSourcesInvalid reports whether the entry has file-based sources and
// every one of them fails verification.
func (a *Analyzer) allFileSourcesInvalid(e *entry.Entry) bool {
	checked, invalid := 0, 0
	for _, src := range e.Source {
		switch entry.ParseRef(src).Kind {
		case entry.RefCode, entry.RefMarkdown, entry.RefFunction:
			checked++
			if entry.VerifySource(src, a.projectRoot).Status == entry.SourceFail {
				invalid++
			}
		}
	}
	return checked > 0 && invalid == checked
}

// effectiveAgeDays is days since last verification, falling back to days
// since creation. Unparseable dates read as very old.
func (a *Analyzer) effectiveAgeDays(e *entry.Entry) int {
	ref := e.VerifiedTime()
	if ref.IsZero() {
		ref = e.CreatedTime()
	}
	if ref.IsZero() {
		return 999
	}
	return int(a.now().Sub(ref).Hours() / 24)
}
