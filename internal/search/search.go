// Package search implements tiered retrieval over the index: hybrid
// keyword+vector ranking when everything is available, degrading through
// vector-only and keyword-only down to plain token overlap.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/evlog-dev/evlog/internal/config"
	"github.com/evlog-dev/evlog/internal/embed"
	"github.com/evlog-dev/evlog/internal/entry"
	"github.com/evlog-dev/evlog/internal/index"
)

// Mode identifies which retrieval tier served a query.
type Mode string

const (
	ModeHybrid  Mode = "hybrid"
	ModeVector  Mode = "vector"
	ModeKeyword Mode = "keyword"
	ModeBasic   Mode = "basic"
)

// Result is one ranked hit.
type Result struct {
	Entry *entry.Entry `json:"entry"`
	Score float64      `json:"score"`
	// Keyword and Vector hold the tier sub-scores that fed Score, when the
	// serving tier computed them.
	Keyword float64 `json:"keyword_score,omitempty"`
	Vector  float64 `json:"vector_score,omitempty"`
	Boost   float64 `json:"boost,omitempty"`
}

// Report is the full outcome of one query, including which tier served it
// and why, if it was not the hybrid tier.
type Report struct {
	Query    string   `json:"query"`
	Mode     Mode     `json:"mode"`
	Degraded string   `json:"degraded_reason,omitempty"`
	Results  []Result `json:"results"`
}

// Searcher ranks entries for queries. It is stateless between calls; every
// query re-probes index capabilities so mid-process changes (an index rebuilt
// underneath, a provider going away) pick the right tier.
type Searcher struct {
	idx      *index.DB
	provider embed.Provider // nil when no embedding provider is available
	cfg      config.SearchConfig
	log      zerolog.Logger
}

// New creates a searcher over the given index. provider may be nil.
func New(idx *index.DB, provider embed.Provider, cfg config.SearchConfig, logger zerolog.Logger) *Searcher {
	return &Searcher{
		idx:      idx,
		provider: provider,
		cfg:      cfg,
		log:      logger.With().Str("component", "search").Logger(),
	}
}

// Search ranks the given resolved entries against query. entries is the
// live view of the log (id to winning version); deprecated entries are
// never returned. The index contributes scores, the entries map contributes
// the bodies.
func (s *Searcher) Search(ctx context.Context, query string, entries map[string]*entry.Entry) (*Report, error) {
	mode, reason := s.probe()
	return s.search(ctx, query, entries, mode, reason)
}

// SearchWith skips the capability probe and serves the query from the given
// tier. A runtime failure in the forced tier still degrades to basic.
func (s *Searcher) SearchWith(ctx context.Context, query string, entries map[string]*entry.Entry, mode Mode) (*Report, error) {
	if mode == "" {
		return s.Search(ctx, query, entries)
	}
	return s.search(ctx, query, entries, mode, "")
}

func (s *Searcher) search(ctx context.Context, query string, entries map[string]*entry.Entry, mode Mode, reason string) (*Report, error) {
	report := &Report{Query: query, Mode: mode, Degraded: reason}

	results, err := s.runTier(ctx, mode, query, entries)
	if err != nil {
		// A tier that probed as available but failed at runtime degrades to
		// basic rather than failing the query.
		s.log.Warn().Str("mode", string(mode)).Err(err).Msg("search tier failed, falling back to basic")
		report.Mode = ModeBasic
		report.Degraded = "tier " + string(mode) + " failed: " + err.Error()
		results, err = s.basicSearch(query, entries)
		if err != nil {
			return nil, err
		}
	}

	report.Results = s.finalize(results, entries)
	return report, nil
}

// probe picks the best tier the current index state can serve, returning
// the tier and a human-readable reason when it is not hybrid.
func (s *Searcher) probe() (Mode, string) {
	vectors, err := s.idx.VectorCount()
	if err != nil {
		return ModeBasic, "index unreadable: " + err.Error()
	}
	ftsRows, err := s.idx.FTSCount()
	if err != nil {
		return ModeBasic, "index unreadable: " + err.Error()
	}

	vectorReady := s.provider != nil && vectors > 0
	keywordReady := s.idx.FTSAvailable() && ftsRows > 0

	switch {
	case vectorReady && keywordReady:
		return ModeHybrid, ""
	case vectorReady:
		return ModeVector, keywordReason(s.idx.FTSAvailable(), ftsRows)
	case keywordReady:
		return ModeKeyword, vectorReason(s.provider, vectors)
	default:
		return ModeBasic, vectorReason(s.provider, vectors) + "; " + keywordReason(s.idx.FTSAvailable(), ftsRows)
	}
}

func vectorReason(provider embed.Provider, vectors int) string {
	if provider == nil {
		return "no embedding provider"
	}
	if vectors == 0 {
		return "no vectors indexed"
	}
	return ""
}

func keywordReason(available bool, rows int) string {
	if !available {
		return "fts5 unavailable"
	}
	if rows == 0 {
		return "keyword index empty"
	}
	return ""
}

func (s *Searcher) runTier(ctx context.Context, mode Mode, query string, entries map[string]*entry.Entry) ([]Result, error) {
	switch mode {
	case ModeHybrid:
		return s.hybridSearch(ctx, query, entries)
	case ModeVector:
		return s.vectorSearch(ctx, query, entries)
	case ModeKeyword:
		return s.keywordSearch(query, entries)
	default:
		return s.basicSearch(query, entries)
	}
}

// fetchLimit over-fetches candidates per source so boosting and filtering
// have room to reorder before the final cut.
func (s *Searcher) fetchLimit() int {
	return s.cfg.MaxResults * 3
}

func (s *Searcher) hybridSearch(ctx context.Context, query string, entries map[string]*entry.Entry) ([]Result, error) {
	limit := s.fetchLimit()

	ftsHits, err := s.idx.SearchFTS(query, limit)
	if err != nil {
		return nil, err
	}
	qvec, err := s.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	vecHits, err := s.idx.SearchVectors(qvec, limit)
	if err != nil {
		return nil, err
	}

	type combined struct {
		keyword float64
		vector  float64
	}
	scores := make(map[string]*combined)
	for _, h := range ftsHits {
		scores[h.ID] = &combined{keyword: h.Score}
	}

	// Shift cosine into [0, 1], then normalize against the best candidate
	// so the vector component spans the full range like bm25 does.
	var bestVec float64
	shifted := make(map[string]float64, len(vecHits))
	for _, h := range vecHits {
		v := (h.Similarity + 1) / 2
		shifted[h.ID] = v
		if v > bestVec {
			bestVec = v
		}
	}
	for id, v := range shifted {
		if bestVec > 0 {
			v /= bestVec
		}
		c, ok := scores[id]
		if !ok {
			c = &combined{}
			scores[id] = c
		}
		c.vector = v
	}

	var results []Result
	for id, c := range scores {
		e, ok := entries[id]
		if !ok || e.Deprecated {
			continue
		}
		results = append(results, Result{
			Entry:   e,
			Score:   s.cfg.BM25Weight*c.keyword + s.cfg.VectorWeight*c.vector,
			Keyword: c.keyword,
			Vector:  c.vector,
		})
	}
	return results, nil
}

func (s *Searcher) vectorSearch(ctx context.Context, query string, entries map[string]*entry.Entry) ([]Result, error) {
	qvec, err := s.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.idx.SearchVectors(qvec, s.fetchLimit())
	if err != nil {
		return nil, err
	}
	var results []Result
	for _, h := range hits {
		e, ok := entries[h.ID]
		if !ok || e.Deprecated {
			continue
		}
		score := (h.Similarity + 1) / 2
		results = append(results, Result{Entry: e, Score: score, Vector: score})
	}
	return results, nil
}

func (s *Searcher) keywordSearch(query string, entries map[string]*entry.Entry) ([]Result, error) {
	hits, err := s.idx.SearchFTS(query, s.fetchLimit())
	if err != nil {
		return nil, err
	}
	var results []Result
	for _, h := range hits {
		e, ok := entries[h.ID]
		if !ok || e.Deprecated {
			continue
		}
		results = append(results, Result{Entry: e, Score: h.Score, Keyword: h.Score})
	}
	return results, nil
}

// basicSearch needs no index at all: score is the fraction of query tokens
// present in the entry's text, plus a small bonus per query token appearing
// in the title.
func (s *Searcher) basicSearch(query string, entries map[string]*entry.Entry) ([]Result, error) {
	tokens := entry.Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	var results []Result
	for _, e := range entries {
		if e.Deprecated {
			continue
		}
		text := entry.SearchText(e)
		title := toLowerTitle(e)
		matched := 0
		titleHits := 0
		for _, tok := range tokens {
			if containsToken(text, tok) {
				matched++
			}
			if containsToken(title, tok) {
				titleHits++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched)/float64(len(tokens)) + 0.1*float64(titleHits)
		results = append(results, Result{Entry: e, Score: score})
	}
	return results, nil
}

// finalize applies the severity and confidence boost, drops results below
// the score floor, orders deterministically, and cuts to max results.
func (s *Searcher) finalize(results []Result, entries map[string]*entry.Entry) []Result {
	for i := range results {
		b := s.boost(results[i].Entry)
		results[i].Boost = b
		results[i].Score += b
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Score >= s.cfg.MinScore {
			filtered = append(filtered, r)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		ti, erri := entry.ParseTime(filtered[i].Entry.CreatedAt)
		tj, errj := entry.ParseTime(filtered[j].Entry.CreatedAt)
		if erri == nil && errj == nil && !ti.Equal(tj) {
			return ti.After(tj)
		}
		return filtered[i].Entry.ID < filtered[j].Entry.ID
	})

	if len(filtered) > s.cfg.MaxResults {
		filtered = filtered[:s.cfg.MaxResults]
	}
	if filtered == nil {
		filtered = []Result{}
	}
	return filtered
}

func toLowerTitle(e *entry.Entry) string { return strings.ToLower(e.Title) }

func containsToken(text, tok string) bool { return strings.Contains(text, tok) }

// boost rewards hard constraints by severity and nudges by confidence so
// vetted entries edge out stale ones at equal relevance.
func (s *Searcher) boost(e *entry.Entry) float64 {
	var b float64
	if e.Classification == entry.ClassHard {
		switch e.Severity {
		case entry.SeverityS1:
			b += s.cfg.HardS1Boost
		case entry.SeverityS2:
			b += s.cfg.HardS2Boost
		case entry.SeverityS3:
			b += s.cfg.HardS3Boost
		}
	}
	return b + s.cfg.ConfidenceWeight*e.Confidence()
}
