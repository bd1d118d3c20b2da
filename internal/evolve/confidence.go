package evolve

import (
	"math"

	"github.com/evlog-dev/evlog/internal/entry"
)

// Component weights of the composite confidence score.
const (
	weightSourceQuality  = 0.30
	weightAgeDecay       = 0.30
	weightVerifyBoost    = 0.15
	weightSourceValidity = 0.25
)

// sourceQuality maps reference kinds to a trust weight. Code beats prose
// beats history.
var sourceQuality = map[entry.RefKind]float64{
	entry.RefCode:     1.0,
	entry.RefFunction: 1.0,
	entry.RefMarkdown: 0.7,
	entry.RefCommit:   0.6,
	entry.RefPR:       0.5,
	entry.RefUnknown:  0.3,
}

// Breakdown holds the individual factors behind a confidence score.
type Breakdown struct {
	SourceQuality  float64 `json:"source_quality"`
	AgeDecay       float64 `json:"age_decay"`
	VerifyBoost    float64 `json:"verification_boost"`
	SourceValidity float64 `json:"source_validity"`
}

// Confidence is the scored result for one entry.
type Confidence struct {
	EntryID        string    `json:"entry_id"`
	Score          float64   `json:"score"`
	Breakdown      Breakdown `json:"breakdown"`
	Classification string    `json:"classification"` // high, medium, low
}

// Confidence computes the composite confidence score for an entry:
// weighted source quality, exponential age decay, verification recency
// boost, and the fraction of sources that still resolve on disk.
func (a *Analyzer) Confidence(e *entry.Entry) Confidence {
	var b Breakdown

	// Best source kind present wins.
	for _, src := range e.Source {
		q := sourceQuality[entry.ParseRef(src).Kind]
		if q > b.SourceQuality {
			b.SourceQuality = q
		}
	}

	// Decay from last_verified when set, otherwise created_at. Half-life in
	// fractional days so freshly verified entries do not all round to 1.0.
	ref := e.VerifiedTime()
	if ref.IsZero() {
		ref = e.CreatedTime()
	}
	if !ref.IsZero() && a.cfg.HalfLifeDays > 0 {
		ageDays := a.now().Sub(ref).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		b.AgeDecay = math.Pow(2, -ageDays/a.cfg.HalfLifeDays)
	}

	if verified := e.VerifiedTime(); !verified.IsZero() {
		days := int(a.now().Sub(verified).Hours() / 24)
		switch {
		case days <= a.cfg.VerifyFullBoostDays:
			b.VerifyBoost = 1.0
		case days <= a.cfg.VerifyPartialBoostDays:
			b.VerifyBoost = 0.67
		}
	}

	if len(e.Source) > 0 {
		var sum float64
		for _, src := range e.Source {
			sum += a.sourceValidity(src)
		}
		b.SourceValidity = sum / float64(len(e.Source))
	}

	score := weightSourceQuality*b.SourceQuality +
		weightAgeDecay*b.AgeDecay +
		weightVerifyBoost*b.VerifyBoost +
		weightSourceValidity*b.SourceValidity
	score = math.Max(0, math.Min(1, score))

	return Confidence{
		EntryID:        e.ID,
		Score:          score,
		Breakdown:      b,
		Classification: classify(score),
	}
}

// sourceValidity scores one reference: commits and PRs are informational
// and count half, file references are checked on disk.
func (a *Analyzer) sourceValidity(src string) float64 {
	switch entry.ParseRef(src).Kind {
	case entry.RefCommit, entry.RefPR:
		return 0.5
	}
	check := entry.VerifySource(src, a.projectRoot)
	switch check.Status {
	case entry.SourceOK:
		return 1.0
	case entry.SourceWarn:
		return 0.5
	default:
		return 0
	}
}

func classify(score float64) string {
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.4:
		return "medium"
	default:
		return "low"
	}
}
