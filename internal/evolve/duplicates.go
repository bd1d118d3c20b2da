package evolve

import (
	"context"
	"sort"

	"github.com/evlog-dev/evlog/internal/entry"
	"github.com/evlog-dev/evlog/internal/index"
)

// PairScore records one confirmed duplicate pair.
type PairScore struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Score float64 `json:"score"`
}

// DuplicateGroup is one cluster of near-identical entries.
type DuplicateGroup struct {
	CanonicalID   string      `json:"canonical_id"`
	MemberIDs     []string    `json:"member_ids"`
	Pairs         []PairScore `json:"pairs"`
	AvgSimilarity float64     `json:"avg_similarity"`
}

// DuplicateReport is the outcome of one duplicate scan.
type DuplicateReport struct {
	TotalEntries   int              `json:"total_entries"`
	EntriesChecked int              `json:"entries_checked"`
	Groups         []DuplicateGroup `json:"groups"`
	Mode           string           `json:"mode"` // "text" or "hybrid"
}

// Duplicates clusters active entries whose identity text overlaps beyond the
// text threshold. When a vector index and provider are present, candidate
// pairs are refined by embedding cosine similarity against the stricter
// vector threshold; pairs whose embedding lookup fails keep their text score.
func (a *Analyzer) Duplicates(ctx context.Context, entries map[string]*entry.Entry) *DuplicateReport {
	report := &DuplicateReport{TotalEntries: len(entries), Mode: "text"}

	var ids []string
	texts := make(map[string]string)
	for id, e := range entries {
		if e.Deprecated {
			continue
		}
		ids = append(ids, id)
		texts[id] = entry.DedupText(e)
	}
	sort.Strings(ids)
	report.EntriesChecked = len(ids)
	if len(ids) < 2 {
		return report
	}

	var candidates []PairScore
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			score := entry.Similarity(texts[ids[i]], texts[ids[j]])
			if score >= a.cfg.TextDedupThreshold {
				candidates = append(candidates, PairScore{A: ids[i], B: ids[j], Score: score})
			}
		}
	}

	confirmed := candidates
	if a.idx != nil && a.provider != nil && len(candidates) > 0 {
		report.Mode = "hybrid"
		confirmed = confirmed[:0]
		for _, pair := range candidates {
			sim, err := a.vectorSimilarity(ctx, pair.A, pair.B, texts)
			if err != nil {
				a.log.Warn().Str("a", pair.A).Str("b", pair.B).Err(err).Msg("vector refinement failed, keeping text score")
				confirmed = append(confirmed, pair)
				continue
			}
			if sim >= a.cfg.VectorDedupThreshold {
				confirmed = append(confirmed, PairScore{A: pair.A, B: pair.B, Score: sim})
			}
		}
	}
	if len(confirmed) == 0 {
		return report
	}

	uf := newUnionFind()
	for _, pair := range confirmed {
		uf.union(pair.A, pair.B)
	}

	for _, members := range uf.groups() {
		var pairs []PairScore
		var sum float64
		inGroup := make(map[string]bool, len(members))
		for _, id := range members {
			inGroup[id] = true
		}
		for _, pair := range confirmed {
			if inGroup[pair.A] && inGroup[pair.B] {
				pairs = append(pairs, pair)
				sum += pair.Score
			}
		}
		avg := 0.0
		if len(pairs) > 0 {
			avg = sum / float64(len(pairs))
		}
		sort.Strings(members)
		report.Groups = append(report.Groups, DuplicateGroup{
			CanonicalID:   rankForMerge(members, entries)[0],
			MemberIDs:     members,
			Pairs:         pairs,
			AvgSimilarity: avg,
		})
	}

	sort.Slice(report.Groups, func(i, j int) bool {
		if len(report.Groups[i].MemberIDs) != len(report.Groups[j].MemberIDs) {
			return len(report.Groups[i].MemberIDs) > len(report.Groups[j].MemberIDs)
		}
		return report.Groups[i].CanonicalID < report.Groups[j].CanonicalID
	})
	return report
}

// vectorSimilarity fetches or computes embeddings for both entries and
// returns their cosine similarity.
func (a *Analyzer) vectorSimilarity(ctx context.Context, idA, idB string, texts map[string]string) (float64, error) {
	vecA, err := a.entryVector(ctx, idA, texts[idA])
	if err != nil {
		return 0, err
	}
	vecB, err := a.entryVector(ctx, idB, texts[idB])
	if err != nil {
		return 0, err
	}
	return index.CosineSimilarity(vecA, vecB), nil
}

func (a *Analyzer) entryVector(ctx context.Context, id, text string) ([]float32, error) {
	vec, err := a.idx.GetVector(id)
	if err != nil {
		return nil, err
	}
	if vec != nil {
		return vec, nil
	}
	return a.provider.EmbedQuery(ctx, text)
}

// unionFind clusters duplicate pairs.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]] // path compression
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(x, y string) {
	rx, ry := u.find(x), u.find(y)
	if rx != ry {
		u.parent[rx] = ry
	}
}

// groups returns clusters with more than one member.
func (u *unionFind) groups() [][]string {
	byRoot := make(map[string][]string)
	for x := range u.parent {
		root := u.find(x)
		byRoot[root] = append(byRoot[root], x)
	}
	var out [][]string
	for _, members := range byRoot {
		if len(members) > 1 {
			out = append(out, members)
		}
	}
	return out
}
