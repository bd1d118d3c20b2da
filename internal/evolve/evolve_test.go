package evolve

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/evlog-dev/evlog/internal/config"
	"github.com/evlog-dev/evlog/internal/entry"
)

var testNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func testAnalyzer(t *testing.T, projectRoot string) *Analyzer {
	t.Helper()
	cfg := config.Default()
	a := New(cfg.Evolution, cfg.Verify.StalenessDays, projectRoot, nil, nil, zerolog.Nop())
	a.now = func() time.Time { return testNow }
	return a
}

func strptr(s string) *string { return &s }

func activeEntry(id string, created time.Time) *entry.Entry {
	return &entry.Entry{
		ID:             id,
		Type:           entry.TypeLesson,
		Classification: entry.ClassSoft,
		Severity:       entry.SeverityS3,
		Title:          "entry " + id,
		Content:        []string{"first detail", "second detail"},
		Rule:           strptr("a rule"),
		CreatedAt:      created.Format(time.RFC3339),
	}
}

func TestAgeDecayHalfLife(t *testing.T) {
	a := testAnalyzer(t, t.TempDir())

	// Exactly one half-life old: the decay factor must be 0.5.
	e := activeEntry("lesson-a_go-00000001", testNow.AddDate(0, 0, -120))
	c := a.Confidence(e)
	if math.Abs(c.Breakdown.AgeDecay-0.5) > 1e-9 {
		t.Fatalf("decay at half-life = %v, want 0.5", c.Breakdown.AgeDecay)
	}

	// Fresh entry decays to ~1, two half-lives to ~0.25.
	fresh := a.Confidence(activeEntry("lesson-b_go-00000002", testNow))
	if math.Abs(fresh.Breakdown.AgeDecay-1) > 1e-9 {
		t.Fatalf("fresh decay = %v, want 1", fresh.Breakdown.AgeDecay)
	}
	old := a.Confidence(activeEntry("lesson-c_go-00000003", testNow.AddDate(0, 0, -240)))
	if math.Abs(old.Breakdown.AgeDecay-0.25) > 1e-9 {
		t.Fatalf("decay at two half-lives = %v, want 0.25", old.Breakdown.AgeDecay)
	}
}

func TestVerificationBoostWindows(t *testing.T) {
	a := testAnalyzer(t, t.TempDir())
	e := activeEntry("lesson-a_go-00000001", testNow.AddDate(-1, 0, 0))

	tests := []struct {
		daysAgo int
		want    float64
	}{
		{10, 1.0},
		{30, 1.0},
		{60, 0.67},
		{90, 0.67},
		{91, 0.0},
	}
	for _, tt := range tests {
		e.LastVerified = testNow.AddDate(0, 0, -tt.daysAgo).Format(time.RFC3339)
		c := a.Confidence(e)
		if c.Breakdown.VerifyBoost != tt.want {
			t.Errorf("boost at %dd = %v, want %v", tt.daysAgo, c.Breakdown.VerifyBoost, tt.want)
		}
	}
}

func TestSourceQualityAndValidity(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "lib", "store.go")
	os.MkdirAll(filepath.Dir(path), 0o755)
	os.WriteFile(path, []byte("package lib\n\nvar x = 1\n"), 0o644)

	a := testAnalyzer(t, root)

	e := activeEntry("lesson-a_go-00000001", testNow)
	e.Source = []string{"lib/store.go:L1-L3"}
	c := a.Confidence(e)
	if c.Breakdown.SourceQuality != 1.0 {
		t.Fatalf("code source quality = %v, want 1.0", c.Breakdown.SourceQuality)
	}
	if c.Breakdown.SourceValidity != 1.0 {
		t.Fatalf("existing source validity = %v, want 1.0", c.Breakdown.SourceValidity)
	}

	e.Source = []string{"lib/missing.go:L1-L3"}
	c = a.Confidence(e)
	if c.Breakdown.SourceValidity != 0 {
		t.Fatalf("missing source validity = %v, want 0", c.Breakdown.SourceValidity)
	}

	// PR references are informational: half validity, low quality.
	e.Source = []string{"PR #42"}
	c = a.Confidence(e)
	if c.Breakdown.SourceQuality != 0.5 || c.Breakdown.SourceValidity != 0.5 {
		t.Fatalf("pr source = %+v", c.Breakdown)
	}
}

func TestClassificationThresholds(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.85, "high"},
		{0.7, "high"},
		{0.69, "medium"},
		{0.4, "medium"},
		{0.39, "low"},
	}
	for _, tt := range tests {
		if got := classify(tt.score); got != tt.want {
			t.Errorf("classify(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestDuplicatesClusterNearIdentical(t *testing.T) {
	a := testAnalyzer(t, t.TempDir())

	dup1 := activeEntry("lesson-a_go-00000001", testNow.AddDate(0, 0, -2))
	dup1.Title = "Always enable WAL journal mode for sqlite databases"
	dup2 := activeEntry("lesson-b_go-00000002", testNow.AddDate(0, 0, -1))
	dup2.Title = "Always enable WAL journal mode for sqlite database"
	other := activeEntry("lesson-c_go-00000003", testNow)
	other.Title = "Use exponential backoff for flaky network calls"

	entries := map[string]*entry.Entry{dup1.ID: dup1, dup2.ID: dup2, other.ID: other}
	report := a.Duplicates(context.Background(), entries)

	if len(report.Groups) != 1 {
		t.Fatalf("got %d groups, want 1: %+v", len(report.Groups), report.Groups)
	}
	g := report.Groups[0]
	if len(g.MemberIDs) != 2 {
		t.Fatalf("group members = %v", g.MemberIDs)
	}
	if g.AvgSimilarity < a.cfg.TextDedupThreshold {
		t.Fatalf("avg similarity %v below threshold", g.AvgSimilarity)
	}
}

func TestDuplicatesSkipDeprecated(t *testing.T) {
	a := testAnalyzer(t, t.TempDir())
	dup1 := activeEntry("lesson-a_go-00000001", testNow)
	dup1.Title = "identical duplicate title here"
	dup2 := activeEntry("lesson-b_go-00000002", testNow)
	dup2.Title = "identical duplicate title here"
	dup2.Deprecated = true

	report := a.Duplicates(context.Background(), map[string]*entry.Entry{dup1.ID: dup1, dup2.ID: dup2})
	if len(report.Groups) != 0 {
		t.Fatalf("deprecated entry joined a group: %+v", report.Groups)
	}
}

func TestMergeRanking(t *testing.T) {
	a := testAnalyzer(t, t.TempDir())

	weak := activeEntry("lesson-a_go-00000001", testNow.AddDate(0, 0, -10))
	strong := activeEntry("lesson-b_go-00000002", testNow.AddDate(0, 0, -5))
	strong.Severity = entry.SeverityS1
	strong.Source = []string{"lib/a.go:L1-L2", "lib/b.go:L1-L2"}
	entries := map[string]*entry.Entry{weak.ID: weak, strong.ID: strong}

	groups := []DuplicateGroup{{
		CanonicalID:   strong.ID,
		MemberIDs:     []string{weak.ID, strong.ID},
		AvgSimilarity: 0.9,
	}}
	suggestions := a.Merges(groups, entries)
	if len(suggestions) != 1 {
		t.Fatalf("got %d suggestions", len(suggestions))
	}
	s := suggestions[0]
	if s.KeepID != strong.ID {
		t.Fatalf("keep = %s, want higher severity entry", s.KeepID)
	}
	if len(s.DeprecateIDs) != 1 || s.DeprecateIDs[0] != weak.ID {
		t.Fatalf("deprecate = %v", s.DeprecateIDs)
	}
}

func TestMergeRankingTiebreakOlderWins(t *testing.T) {
	older := activeEntry("lesson-a_go-00000001", testNow.AddDate(0, 0, -100))
	newer := activeEntry("lesson-b_go-00000002", testNow.AddDate(0, 0, -1))
	entries := map[string]*entry.Entry{older.ID: older, newer.ID: newer}

	ranked := rankForMerge([]string{newer.ID, older.ID}, entries)
	if ranked[0] != older.ID {
		t.Fatalf("ranked[0] = %s, want older entry on full tie", ranked[0])
	}
}

func TestDeprecationsSupersededAndStale(t *testing.T) {
	a := testAnalyzer(t, t.TempDir())

	superseded := activeEntry("lesson-a_go-00000001", testNow.AddDate(0, 0, -3))
	superseded.Meta = map[string]json.RawMessage{"superseded_by": json.RawMessage(`"lesson-b_go-00000002"`)}

	stale := activeEntry("lesson-c_go-00000003", testNow.AddDate(0, 0, -250))
	stale.Source = []string{"commit 9fceb02a"} // keeps some confidence

	fresh := activeEntry("lesson-d_go-00000004", testNow)
	fresh.Source = []string{"PR #1"}

	entries := map[string]*entry.Entry{superseded.ID: superseded, stale.ID: stale, fresh.ID: fresh}
	report := a.Deprecations(entries, nil)

	byID := make(map[string]DeprecationCandidate)
	for _, c := range report.Candidates {
		byID[c.EntryID] = c
	}

	if c, ok := byID[superseded.ID]; !ok || c.Action != "deprecate" {
		t.Fatalf("superseded candidate = %+v", c)
	}
	if c, ok := byID[stale.ID]; !ok || c.Action != "reverify" {
		t.Fatalf("stale candidate = %+v", c)
	}
	if _, ok := byID[fresh.ID]; ok {
		t.Fatal("fresh entry should not be a candidate")
	}
}

func TestAnalyzeNeverMutatesEntries(t *testing.T) {
	a := testAnalyzer(t, t.TempDir())
	e := activeEntry("lesson-a_go-00000001", testNow.AddDate(0, 0, -10))
	data, _ := e.Marshal()
	entries := map[string]*entry.Entry{e.ID: e}

	report := a.Analyze(context.Background(), entries)
	if report.ActiveEntries != 1 {
		t.Fatalf("active = %d", report.ActiveEntries)
	}
	after, _ := e.Marshal()
	if !reflect.DeepEqual(data, after) {
		t.Fatal("analyze mutated an entry")
	}
}

func TestAnalyzeHealthScoreIsMeanConfidence(t *testing.T) {
	a := testAnalyzer(t, t.TempDir())
	e1 := activeEntry("lesson-a_go-00000001", testNow)
	e2 := activeEntry("lesson-b_go-00000002", testNow.AddDate(0, 0, -240))
	entries := map[string]*entry.Entry{e1.ID: e1, e2.ID: e2}

	report := a.Analyze(context.Background(), entries)
	want := (a.Confidence(e1).Score + a.Confidence(e2).Score) / 2
	if math.Abs(report.HealthScore-want) > 1e-9 {
		t.Fatalf("health = %v, want %v", report.HealthScore, want)
	}
}
