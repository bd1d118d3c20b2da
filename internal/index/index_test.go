package index

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/evlog-dev/evlog/internal/entry"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory(zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func strptr(s string) *string { return &s }

func indexEntry(t *testing.T, db *DB, id, title string, tags ...string) *entry.Entry {
	t.Helper()
	e := &entry.Entry{
		ID:             id,
		Type:           entry.TypeFact,
		Classification: entry.ClassSoft,
		Severity:       entry.SeverityS3,
		Title:          title,
		Content:        []string{"first detail", "second detail"},
		Rule:           strptr("a rule"),
		Tags:           tags,
		CreatedAt:      "2026-01-01T00:00:00Z",
	}
	if err := db.UpsertEntry(e, entry.TextHash(title)); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	return e
}

func TestUpsertEntryAndTextHash(t *testing.T) {
	db := testDB(t)
	indexEntry(t, db, "fact-a_go-00000001", "first title")

	h, err := db.TextHash("fact-a_go-00000001")
	if err != nil {
		t.Fatalf("TextHash: %v", err)
	}
	if h != entry.TextHash("first title") {
		t.Fatalf("stored hash %q does not match", h)
	}

	// Unknown id yields an empty hash, not an error.
	h, err = db.TextHash("fact-missing-00000000")
	if err != nil || h != "" {
		t.Fatalf("missing id: hash=%q err=%v", h, err)
	}
}

func TestMarkDeprecatedExcludesFromCounts(t *testing.T) {
	db := testDB(t)
	indexEntry(t, db, "fact-a_go-00000001", "one")
	indexEntry(t, db, "fact-b_go-00000002", "two")
	if err := db.MarkDeprecated("fact-a_go-00000001"); err != nil {
		t.Fatalf("MarkDeprecated: %v", err)
	}
	total, active, err := db.EntryCount()
	if err != nil {
		t.Fatalf("EntryCount: %v", err)
	}
	if total != 2 || active != 1 {
		t.Fatalf("total=%d active=%d, want 2/1", total, active)
	}
}

func TestVectorRoundTripAndSearch(t *testing.T) {
	db := testDB(t)
	indexEntry(t, db, "fact-a_go-00000001", "about databases")
	indexEntry(t, db, "fact-b_go-00000002", "about networks")
	indexEntry(t, db, "fact-c_go-00000003", "deprecated entry")

	if err := db.UpsertVector("fact-a_go-00000001", []float32{1, 0, 0}, "test-model", "h1"); err != nil {
		t.Fatalf("UpsertVector: %v", err)
	}
	if err := db.UpsertVector("fact-b_go-00000002", []float32{0, 1, 0}, "test-model", "h2"); err != nil {
		t.Fatalf("UpsertVector: %v", err)
	}
	if err := db.UpsertVector("fact-c_go-00000003", []float32{1, 0, 0}, "test-model", "h3"); err != nil {
		t.Fatalf("UpsertVector: %v", err)
	}
	if err := db.MarkDeprecated("fact-c_go-00000003"); err != nil {
		t.Fatalf("MarkDeprecated: %v", err)
	}

	vec, err := db.GetVector("fact-a_go-00000001")
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if len(vec) != 3 || vec[0] != 1 {
		t.Fatalf("round trip vector = %v", vec)
	}

	hits, err := db.SearchVectors([]float32{0.9, 0.1, 0}, 10)
	if err != nil {
		t.Fatalf("SearchVectors: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2 (deprecated excluded)", len(hits))
	}
	if hits[0].ID != "fact-a_go-00000001" {
		t.Fatalf("best hit = %s, want the aligned vector", hits[0].ID)
	}
	if hits[0].Similarity <= hits[1].Similarity {
		t.Fatal("hits must be ranked by similarity")
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFTSSearchRanksAndNormalizes(t *testing.T) {
	db := testDB(t)
	if !db.FTSAvailable() {
		t.Skip("fts5 not compiled in")
	}
	a := indexEntry(t, db, "fact-a_go-00000001", "sqlite WAL journal mode", "sqlite")
	b := indexEntry(t, db, "fact-b_go-00000002", "network retry with backoff", "http")
	if err := db.UpsertFTS(a.ID, entry.BuildFTSFields(a)); err != nil {
		t.Fatalf("UpsertFTS: %v", err)
	}
	if err := db.UpsertFTS(b.ID, entry.BuildFTSFields(b)); err != nil {
		t.Fatalf("UpsertFTS: %v", err)
	}

	hits, err := db.SearchFTS("sqlite journal", 10)
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(hits) == 0 || hits[0].ID != a.ID {
		t.Fatalf("hits = %+v, want sqlite entry first", hits)
	}
	if hits[0].Score != 1 {
		t.Fatalf("best score = %v, want normalized to 1", hits[0].Score)
	}
}

func TestFTSQuerySanitizesInput(t *testing.T) {
	db := testDB(t)
	if !db.FTSAvailable() {
		t.Skip("fts5 not compiled in")
	}
	a := indexEntry(t, db, "fact-a_go-00000001", "parser handles quotes")
	if err := db.UpsertFTS(a.ID, entry.BuildFTSFields(a)); err != nil {
		t.Fatalf("UpsertFTS: %v", err)
	}
	// Raw FTS operators and stray quotes must not produce a syntax error.
	if _, err := db.SearchFTS(`"unbalanced AND (NEAR`, 10); err != nil {
		t.Fatalf("hostile query errored: %v", err)
	}
}

func TestCursorRoundTripAndReset(t *testing.T) {
	db := testDB(t)

	c, err := db.Cursor()
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if c.Offset != 0 || c.Fingerprint != "" {
		t.Fatalf("fresh cursor = %+v, want zero", c)
	}

	want := Cursor{Offset: 1024, Fingerprint: "deadbeefdeadbeef"}
	if err := db.SetCursor(want); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	c, err = db.Cursor()
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if c != want {
		t.Fatalf("cursor = %+v, want %+v", c, want)
	}

	if err := db.ResetCursor(); err != nil {
		t.Fatalf("ResetCursor: %v", err)
	}
	c, _ = db.Cursor()
	if c.Offset != 0 {
		t.Fatal("reset cursor should read as zero")
	}
}

func TestClearDropsEverything(t *testing.T) {
	db := testDB(t)
	a := indexEntry(t, db, "fact-a_go-00000001", "title")
	db.UpsertVector(a.ID, []float32{1}, "m", "h")
	db.SetCursor(Cursor{Offset: 10, Fingerprint: "ff"})

	if err := db.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalEntries != 0 || stats.Vectors != 0 || stats.CursorOffset != 0 {
		t.Fatalf("index not empty after clear: %+v", stats)
	}
}
