package eventlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/evlog-dev/evlog/internal/entry"
)

func testLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	return Open(path, zerolog.Nop())
}

func writeLines(t *testing.T, l *Log, lines ...string) {
	t.Helper()
	if err := os.WriteFile(l.Path(), []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func strptr(s string) *string { return &s }

func testEntry(id, created string) *entry.Entry {
	return &entry.Entry{
		ID:             id,
		Type:           entry.TypeFact,
		Classification: entry.ClassSoft,
		Severity:       entry.SeverityS3,
		Title:          "test entry " + id,
		Content:        []string{"first detail", "second detail"},
		Rule:           strptr("a rule"),
		Source:         []string{"internal/app/app.go:L1-L5"},
		CreatedAt:      created,
	}
}

func line(t *testing.T, e *entry.Entry) string {
	t.Helper()
	data, err := e.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestAppendAndLoad(t *testing.T) {
	l := testLog(t)
	e := testEntry("fact-one_go-0badf00d", "2026-01-01T00:00:00Z")
	if err := l.Append(e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	res, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(res.Entries))
	}
	if got := res.Entries[e.ID]; got == nil || got.Title != e.Title {
		t.Fatalf("loaded entry mismatch: %+v", got)
	}
}

func TestAppendRejectsInvalidEntry(t *testing.T) {
	l := testLog(t)
	e := testEntry("fact-one_go-0badf00d", "2026-01-01T00:00:00Z")
	e.Rule = nil // no rule, no implication
	if err := l.Append(e); err == nil {
		t.Fatal("expected schema violation")
	}
	if _, statErr := os.Stat(l.Path()); !os.IsNotExist(statErr) {
		t.Fatal("invalid append must not create the log file")
	}
}

func TestLoadLatestWins(t *testing.T) {
	l := testLog(t)
	old := testEntry("fact-one_go-0badf00d", "2026-01-01T00:00:00Z")
	old.Title = "old title"
	newer := testEntry("fact-one_go-0badf00d", "2026-02-01T00:00:00Z")
	newer.Title = "new title"
	// Append out of order: the newer timestamp still wins.
	writeLines(t, l, line(t, newer), line(t, old))

	res, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := res.Entries["fact-one_go-0badf00d"].Title; got != "new title" {
		t.Fatalf("got %q, want latest version", got)
	}
}

func TestLoadTimestampTieLaterLineWins(t *testing.T) {
	l := testLog(t)
	a := testEntry("fact-one_go-0badf00d", "2026-01-01T00:00:00Z")
	a.Title = "first write"
	b := testEntry("fact-one_go-0badf00d", "2026-01-01T00:00:00Z")
	b.Title = "second write"
	writeLines(t, l, line(t, a), line(t, b))

	res, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := res.Entries["fact-one_go-0badf00d"].Title; got != "second write" {
		t.Fatalf("got %q, want the later append on a timestamp tie", got)
	}
}

func TestLoadSkipsCorruptAndMarkerLines(t *testing.T) {
	l := testLog(t)
	good := testEntry("fact-one_go-0badf00d", "2026-01-01T00:00:00Z")
	writeLines(t, l,
		line(t, good),
		"{not json",
		"<<<<<<< HEAD",
		"=======",
		">>>>>>> feature",
	)

	res, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(res.Entries))
	}
	if res.SkippedLines != 4 {
		t.Fatalf("SkippedLines = %d, want 4", res.SkippedLines)
	}
	if res.MarkerLines != 3 {
		t.Fatalf("MarkerLines = %d, want 3", res.MarkerLines)
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	l := testLog(t)
	res, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Entries) != 0 || res.TotalLines != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestRepairCollapsesDuplicatesAndKeepsBackup(t *testing.T) {
	l := testLog(t)
	old := testEntry("fact-one_go-0badf00d", "2026-01-01T00:00:00Z")
	newer := testEntry("fact-one_go-0badf00d", "2026-02-01T00:00:00Z")
	other := testEntry("fact-two_go-cafebabe", "2026-01-15T00:00:00Z")
	writeLines(t, l,
		line(t, old),
		"<<<<<<< HEAD",
		line(t, newer),
		"garbage line",
		line(t, other),
	)

	report, err := l.Repair(false)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if report.KeptEntries != 2 || report.DroppedDupes != 1 || report.DroppedCorrupt != 1 || report.MarkersRemoved != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := os.Stat(report.BackupPath); err != nil {
		t.Fatalf("backup missing: %v", err)
	}

	res, err := l.Load()
	if err != nil {
		t.Fatalf("Load after repair: %v", err)
	}
	if res.TotalLines != 2 || res.SkippedLines != 0 {
		t.Fatalf("repaired log not clean: %+v", res)
	}
	// Survivors are sorted by created_at, so the other entry comes first.
	if res.Order[0] != "fact-two_go-cafebabe" {
		t.Fatalf("order = %v, want created_at sort", res.Order)
	}
	if res.Entries["fact-one_go-0badf00d"].CreatedAt != "2026-02-01T00:00:00Z" {
		t.Fatal("repair kept the older duplicate")
	}
}

func TestRepairResortsCleanOutOfOrderLog(t *testing.T) {
	l := testLog(t)
	later := testEntry("fact-one_go-0badf00d", "2026-03-01T00:00:00Z")
	earlier := testEntry("fact-two_go-cafebabe", "2026-01-01T00:00:00Z")
	writeLines(t, l, line(t, later), line(t, earlier))

	report, err := l.Repair(false)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if !report.Resorted || !report.Changed() {
		t.Fatalf("out-of-order log not flagged: %+v", report)
	}
	if report.DroppedDupes != 0 || report.DroppedCorrupt != 0 || report.MarkersRemoved != 0 {
		t.Fatalf("unexpected drops on a clean log: %+v", report)
	}

	res, err := l.Load()
	if err != nil {
		t.Fatalf("Load after repair: %v", err)
	}
	if len(res.Order) != 2 || res.Order[0] != "fact-two_go-cafebabe" {
		t.Fatalf("order = %v, want created_at sort", res.Order)
	}

	// A second pass sees a canonical log and leaves it alone.
	report, err = l.Repair(false)
	if err != nil {
		t.Fatalf("second Repair: %v", err)
	}
	if report.Changed() {
		t.Fatalf("canonical log reported as changed: %+v", report)
	}
}

func TestRepairDryRunLeavesFileAlone(t *testing.T) {
	l := testLog(t)
	writeLines(t, l, line(t, testEntry("fact-one_go-0badf00d", "2026-01-01T00:00:00Z")), "corrupt")
	before, _ := os.ReadFile(l.Path())

	report, err := l.Repair(true)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if !report.Changed() {
		t.Fatal("report should flag the corrupt line")
	}
	after, _ := os.ReadFile(l.Path())
	if string(before) != string(after) {
		t.Fatal("dry run must not modify the log")
	}
}

func TestReadFromReturnsTail(t *testing.T) {
	l := testLog(t)
	a := line(t, testEntry("fact-one_go-0badf00d", "2026-01-01T00:00:00Z"))
	b := line(t, testEntry("fact-two_go-cafebabe", "2026-01-02T00:00:00Z"))
	writeLines(t, l, a, b)

	offset := int64(len(a) + 1)
	tail, err := l.ReadFrom(offset)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if strings.TrimSpace(string(tail)) != b {
		t.Fatalf("tail = %q, want second line", tail)
	}
}

func TestLockExclusiveBlocksAppend(t *testing.T) {
	l := testLog(t)
	unlock, err := l.LockExclusive()
	if err != nil {
		t.Fatalf("LockExclusive: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- l.Append(testEntry("fact-a_go-00000001", "2026-01-01T00:00:00Z")) }()

	select {
	case err := <-done:
		t.Fatalf("append completed under an exclusive lock: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("append after unlock: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("append still blocked after the lock was released")
	}

	resolved, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(resolved.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(resolved.Entries))
	}
}
