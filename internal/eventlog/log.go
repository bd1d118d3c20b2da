// Package eventlog owns the append-only JSONL event log that is the system's
// source of truth. Every other store is derived from it and can be rebuilt.
package eventlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/evlog-dev/evlog/internal/entry"
)

// markerRe matches VCS merge-conflict marker lines that sometimes land in
// the log after a bad merge. They are skipped on load and stripped by repair.
var markerRe = regexp.MustCompile(`^(<{7}|={7}|>{7})(\s|$)`)

// maxLineBytes caps a single log line. Lines past this are treated as
// corrupt rather than ballooning memory.
const maxLineBytes = 4 << 20

// Log is a handle on one events.jsonl file. Appends take an advisory file
// lock so concurrent writers interleave at line granularity.
type Log struct {
	path string
	log  zerolog.Logger
}

// Open returns a handle for the log at path. The file itself is created
// lazily on first append.
func Open(path string, logger zerolog.Logger) *Log {
	return &Log{path: path, log: logger.With().Str("component", "eventlog").Logger()}
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Append validates e and writes it as one JSON line. Validation warnings are
// logged but do not block the write; errors do.
func (l *Log) Append(e *entry.Entry) error {
	res := entry.Validate(e)
	if err := res.Err(); err != nil {
		return fmt.Errorf("append %s: %w", e.ID, err)
	}
	for _, w := range res.Warnings {
		l.log.Warn().Str("id", e.ID).Msg(w)
	}

	data, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("append %s: %w", e.ID, err)
	}
	if bytes.ContainsRune(data, '\n') {
		return fmt.Errorf("append %s: serialized entry spans multiple lines", e.ID)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	lock := flock.New(l.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire log lock: %w", err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write log line: %w", err)
	}
	return f.Sync()
}

// LockExclusive takes the cross-process log lock for the duration of a
// rewrite (repair, compaction), blocking concurrent appends. The returned
// function releases it.
func (l *Log) LockExclusive() (func() error, error) {
	lock := flock.New(l.path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire log lock: %w", err)
	}
	return lock.Unlock, nil
}

// Resolved is the outcome of loading and collapsing the full log: one entry
// per id after last-writer-wins resolution, plus bookkeeping counts.
type Resolved struct {
	// Entries maps id to its winning version.
	Entries map[string]*entry.Entry
	// Positions maps id to the zero-based line index the winning version
	// was appended at.
	Positions map[string]int
	// Order lists ids by winning append position, oldest first.
	Order []string

	TotalLines   int
	SkippedLines int
	MarkerLines  int
}

// ActiveIDs returns the ids of entries that are not deprecated, in append
// order.
func (r *Resolved) ActiveIDs() []string {
	out := make([]string, 0, len(r.Order))
	for _, id := range r.Order {
		if !r.Entries[id].Deprecated {
			out = append(out, id)
		}
	}
	return out
}

// Load reads the whole log and resolves duplicate ids by last writer wins:
// the version with the latest created_at, falling back to the later append
// position on a timestamp tie. Malformed lines and merge markers are counted
// and skipped, never fatal.
func (l *Log) Load() (*Resolved, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Resolved{Entries: map[string]*entry.Entry{}, Positions: map[string]int{}}, nil
		}
		return nil, err
	}
	defer f.Close()

	res := &Resolved{
		Entries:   make(map[string]*entry.Entry),
		Positions: make(map[string]int),
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	pos := -1
	for sc.Scan() {
		pos++
		res.TotalLines++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if markerRe.MatchString(line) {
			res.MarkerLines++
			res.SkippedLines++
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			res.SkippedLines++
			l.log.Debug().Int("line", pos+1).Err(err).Msg("skipping malformed log line")
			continue
		}
		prev, seen := res.Entries[e.ID]
		if !seen || entry.Newer(e.CreatedAt, pos, prev.CreatedAt, res.Positions[e.ID]) {
			res.Entries[e.ID] = e
			res.Positions[e.ID] = pos
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", l.path, err)
	}

	res.Order = orderByPosition(res.Positions)
	return res, nil
}

// RawLines streams every line of the log to fn along with its zero-based
// index. Used by repair and compaction, which need the raw text.
func (l *Log) RawLines(fn func(idx int, line string) error) error {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	idx := -1
	for sc.Scan() {
		idx++
		if err := fn(idx, sc.Text()); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Size returns the log file's byte length, or 0 if it does not exist yet.
func (l *Log) Size() (int64, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// ReadFrom returns the log bytes starting at offset. The caller is expected
// to stop at the last complete line; a trailing partial line belongs to a
// write still in flight.
func (l *Log) ReadFrom(offset int64) ([]byte, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

func parseLine(line string) (*entry.Entry, error) {
	e, err := entry.Unmarshal([]byte(line))
	if err != nil {
		return nil, err
	}
	if e.ID == "" {
		return nil, errors.New("line has no id")
	}
	return e, nil
}

func orderByPosition(positions map[string]int) []string {
	type slot struct {
		id  string
		pos int
	}
	slots := make([]slot, 0, len(positions))
	for id, pos := range positions {
		slots = append(slots, slot{id, pos})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].pos < slots[j].pos })
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.id
	}
	return out
}
