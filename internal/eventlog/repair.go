package eventlog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/evlog-dev/evlog/internal/entry"
)

// RepairReport summarizes a repair pass over the log.
type RepairReport struct {
	TotalLines     int    `json:"total_lines"`
	KeptEntries    int    `json:"kept_entries"`
	DroppedDupes   int    `json:"dropped_duplicates"`
	DroppedCorrupt int    `json:"dropped_corrupt"`
	MarkersRemoved int    `json:"markers_removed"`
	Resorted       bool   `json:"resorted"`
	BackupPath     string `json:"backup_path,omitempty"`
	DryRun         bool   `json:"dry_run"`
}

// Changed reports whether a repair would rewrite the file.
func (r *RepairReport) Changed() bool {
	return r.DroppedDupes > 0 || r.DroppedCorrupt > 0 || r.MarkersRemoved > 0 || r.Resorted
}

// Repair rewrites the log to a canonical form: merge markers stripped,
// malformed lines dropped, duplicate ids collapsed to their winning version,
// and surviving entries sorted by created_at. The original file is kept as a
// .bak sibling. With dryRun set, the report is computed but nothing is
// written.
func (l *Log) Repair(dryRun bool) (*RepairReport, error) {
	report := &RepairReport{DryRun: dryRun}

	// Lock before the scan: an append between scan and rename would be
	// missing from the rewritten file.
	if !dryRun {
		unlock, err := l.LockExclusive()
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	type survivor struct {
		e    *entry.Entry
		line string
		pos  int
	}
	winners := make(map[string]survivor)

	err := l.RawLines(func(idx int, raw string) error {
		report.TotalLines++
		line := strings.TrimSpace(raw)
		if line == "" {
			return nil
		}
		if markerRe.MatchString(line) {
			report.MarkersRemoved++
			return nil
		}
		e, err := parseLine(line)
		if err != nil {
			report.DroppedCorrupt++
			return nil
		}
		prev, seen := winners[e.ID]
		if !seen {
			winners[e.ID] = survivor{e, line, idx}
			return nil
		}
		report.DroppedDupes++
		if entry.Newer(e.CreatedAt, idx, prev.e.CreatedAt, prev.pos) {
			winners[e.ID] = survivor{e, line, idx}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	report.KeptEntries = len(winners)

	kept := make([]survivor, 0, len(winners))
	for _, s := range winners {
		kept = append(kept, s)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		ti, erri := entry.ParseTime(kept[i].e.CreatedAt)
		tj, errj := entry.ParseTime(kept[j].e.CreatedAt)
		if erri != nil || errj != nil || ti.Equal(tj) {
			return kept[i].pos < kept[j].pos
		}
		return ti.Before(tj)
	})
	// A log whose lines are clean but out of created_at order still gets
	// rewritten, so readers can rely on the canonical ordering.
	for i, s := range kept {
		if i > 0 && s.pos < kept[i-1].pos {
			report.Resorted = true
			break
		}
	}

	if dryRun || !report.Changed() {
		return report, nil
	}

	backup := l.path + ".bak"
	orig, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(backup, orig, 0o644); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}
	report.BackupPath = backup

	tmp := l.path + ".tmp"
	var buf strings.Builder
	for _, s := range kept {
		buf.WriteString(s.line)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(tmp, []byte(buf.String()), 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return nil, err
	}
	l.log.Info().
		Int("kept", report.KeptEntries).
		Int("duplicates", report.DroppedDupes).
		Int("corrupt", report.DroppedCorrupt).
		Int("markers", report.MarkersRemoved).
		Msg("log repaired")
	return report, nil
}
