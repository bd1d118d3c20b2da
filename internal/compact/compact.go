// Package compact shrinks the event log by archiving superseded and
// deprecated lines into quarterly shards, leaving only the winning version
// of each active entry in the hot log.
package compact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/evlog-dev/evlog/internal/entry"
	"github.com/evlog-dev/evlog/internal/eventlog"
	"github.com/evlog-dev/evlog/internal/index"
)

// Compactor rewrites the event log and maintains the archive directory.
type Compactor struct {
	evlog      *eventlog.Log
	archiveDir string
	idx        *index.DB // may be nil; cursor reset is skipped
	sortOutput bool
	log        zerolog.Logger
}

// New creates a compactor. idx may be nil when no index is open; the sync
// cursor then has to be reset by whoever opens it next (the fingerprint
// check catches the rewrite regardless).
func New(evlog *eventlog.Log, archiveDir string, idx *index.DB, sortOutput bool, logger zerolog.Logger) *Compactor {
	return &Compactor{
		evlog:      evlog,
		archiveDir: archiveDir,
		idx:        idx,
		sortOutput: sortOutput,
		log:        logger.With().Str("component", "compact").Logger(),
	}
}

// Stats is a read-only waste analysis of the log.
type Stats struct {
	TotalLines        int     `json:"total_lines"`
	UniqueEntries     int     `json:"unique_entries"`
	ActiveEntries     int     `json:"active_entries"`
	DeprecatedEntries int     `json:"deprecated_entries"`
	SupersededLines   int     `json:"superseded_lines"`
	CorruptLines      int     `json:"corrupt_lines"`
	WasteRatio        float64 `json:"waste_ratio"`
	SuggestCompact    bool    `json:"suggest_compact"`
}

// Stats computes the waste ratio without writing anything: dead lines
// (superseded, deprecated, corrupt) per active entry. A ratio at or above
// threshold suggests compaction.
func (c *Compactor) Stats(threshold float64) (*Stats, error) {
	resolved, err := c.evlog.Load()
	if err != nil {
		return nil, err
	}

	s := &Stats{
		TotalLines:    resolved.TotalLines,
		UniqueEntries: len(resolved.Entries),
		CorruptLines:  resolved.SkippedLines,
	}
	for _, e := range resolved.Entries {
		if e.Deprecated {
			s.DeprecatedEntries++
		} else {
			s.ActiveEntries++
		}
	}
	s.SupersededLines = s.TotalLines - s.UniqueEntries - s.CorruptLines

	if s.ActiveEntries > 0 {
		s.WasteRatio = float64(s.TotalLines-s.ActiveEntries) / float64(s.ActiveEntries)
	} else if s.TotalLines > 0 {
		// Nothing active at all: every line is waste.
		s.WasteRatio = float64(s.TotalLines)
	}
	s.SuggestCompact = s.WasteRatio >= threshold
	return s, nil
}

// Report records what one compaction did.
type Report struct {
	Timestamp       string   `json:"timestamp"`
	LinesBefore     int      `json:"lines_before"`
	LinesAfter      int      `json:"lines_after"`
	EntriesKept     int      `json:"entries_kept"`
	EntriesArchived int      `json:"entries_archived"`
	LinesArchived   int      `json:"lines_archived"`
	CorruptLines    int      `json:"corrupt_lines"`
	QuartersTouched []string `json:"quarters_touched"`
	DryRun          bool     `json:"dry_run,omitempty"`
}

// Compact rewrites the log down to the winning versions of active entries.
// Deprecated winners and superseded older versions move to quarterly shards
// under the archive directory, an audit line is appended to
// compaction_log.jsonl, and the sync cursor is reset so the next sync
// rebuilds the index. With dryRun set, the report is computed but nothing
// is written.
func (c *Compactor) Compact(dryRun bool) (*Report, error) {
	report := &Report{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DryRun:    dryRun,
	}

	// The lock must span scan through rename: an append landing after the
	// scan would be dropped by the rewrite.
	if !dryRun {
		unlock, err := c.evlog.LockExclusive()
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	var all []logLine
	winnerPos := make(map[string]int)
	winners := make(map[string]*entry.Entry)

	err := c.evlog.RawLines(func(idx int, raw string) error {
		line := strings.TrimSpace(raw)
		if line == "" {
			return nil
		}
		report.LinesBefore++
		e, perr := entry.Unmarshal([]byte(line))
		if perr != nil || e.ID == "" {
			report.CorruptLines++
			return nil
		}
		all = append(all, logLine{e, line, idx})
		prev, seen := winners[e.ID]
		if !seen || entry.Newer(e.CreatedAt, idx, prev.CreatedAt, winnerPos[e.ID]) {
			winners[e.ID] = e
			winnerPos[e.ID] = idx
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if report.LinesBefore == 0 {
		return report, nil
	}

	var keep []logLine
	var archive []logLine
	archivedIDs := make(map[string]bool)
	for _, p := range all {
		if winnerPos[p.e.ID] != p.pos {
			// Superseded older version.
			archive = append(archive, p)
			archivedIDs[p.e.ID] = true
			continue
		}
		if p.e.Deprecated {
			archive = append(archive, p)
			archivedIDs[p.e.ID] = true
			continue
		}
		keep = append(keep, p)
	}

	report.EntriesKept = len(keep)
	report.LinesArchived = len(archive)
	report.EntriesArchived = len(archivedIDs)
	report.LinesAfter = len(keep)
	for q := range groupByQuarter(archive) {
		report.QuartersTouched = append(report.QuartersTouched, q)
	}
	sort.Strings(report.QuartersTouched)

	if dryRun {
		return report, nil
	}

	if len(archive) > 0 {
		if err := c.writeArchive(archive); err != nil {
			return nil, err
		}
	}
	if err := c.rewriteLog(keep); err != nil {
		return nil, err
	}
	if c.idx != nil {
		if err := c.idx.ResetCursor(); err != nil {
			return nil, err
		}
	}
	if err := c.appendAudit(report); err != nil {
		return nil, err
	}

	c.log.Info().
		Int("before", report.LinesBefore).
		Int("after", report.LinesAfter).
		Int("archived", report.LinesArchived).
		Strs("quarters", report.QuartersTouched).
		Msg("log compacted")
	return report, nil
}

// quarterKey maps a created_at timestamp to its archive shard key, e.g.
// "2026-02-01T14:30:00Z" to "2026Q1". Unparseable timestamps shard under
// "unknown".
func quarterKey(createdAt string) string {
	t, err := entry.ParseTime(createdAt)
	if err != nil {
		return "unknown"
	}
	q := (int(t.Month())-1)/3 + 1
	return fmt.Sprintf("%dQ%d", t.Year(), q)
}

// logLine pairs a parsed entry with its raw text and append position.
type logLine struct {
	e   *entry.Entry
	raw string
	pos int
}

func groupByQuarter(lines []logLine) map[string][]logLine {
	out := make(map[string][]logLine)
	for _, l := range lines {
		key := quarterKey(l.e.CreatedAt)
		out[key] = append(out[key], l)
	}
	return out
}

// writeArchive appends archived lines to their quarterly shard files,
// preserving the raw line text byte for byte.
func (c *Compactor) writeArchive(archive []logLine) error {
	if err := os.MkdirAll(c.archiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	byQuarter := groupByQuarter(archive)
	quarters := make([]string, 0, len(byQuarter))
	for q := range byQuarter {
		quarters = append(quarters, q)
	}
	sort.Strings(quarters)

	for _, q := range quarters {
		path := filepath.Join(c.archiveDir, fmt.Sprintf("events_%s.jsonl", q))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		for _, l := range byQuarter[q] {
			if _, err := f.WriteString(l.raw + "\n"); err != nil {
				f.Close()
				return fmt.Errorf("archive %s: %w", path, err)
			}
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

// rewriteLog replaces the hot log with the kept lines via a tmp file and an
// atomic rename.
func (c *Compactor) rewriteLog(keep []logLine) error {
	if c.sortOutput {
		sort.SliceStable(keep, func(i, j int) bool {
			ti, erri := entry.ParseTime(keep[i].e.CreatedAt)
			tj, errj := entry.ParseTime(keep[j].e.CreatedAt)
			if erri != nil || errj != nil || ti.Equal(tj) {
				return keep[i].pos < keep[j].pos
			}
			return ti.Before(tj)
		})
	}

	var buf strings.Builder
	for _, l := range keep {
		buf.WriteString(l.raw)
		buf.WriteByte('\n')
	}

	tmp := c.evlog.Path() + ".tmp"
	if err := os.WriteFile(tmp, []byte(buf.String()), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.evlog.Path()); err != nil {
		return fmt.Errorf("swap compacted log: %w", err)
	}
	return nil
}

// appendAudit appends the report to archive/compaction_log.jsonl.
func (c *Compactor) appendAudit(report *Report) error {
	if err := os.MkdirAll(c.archiveDir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	path := filepath.Join(c.archiveDir, "compaction_log.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}
