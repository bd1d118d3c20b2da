package compact

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evlog-dev/evlog/internal/entry"
)

// ArchiveShard describes one quarterly archive file.
type ArchiveShard struct {
	Quarter string `json:"quarter"`
	Path    string `json:"path"`
	Lines   int    `json:"lines"`
	Bytes   int64  `json:"bytes"`
}

// ListArchives enumerates the quarterly shards present in the archive
// directory, oldest quarter first.
func ListArchives(archiveDir string) ([]ArchiveShard, error) {
	dirEntries, err := os.ReadDir(archiveDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var shards []ArchiveShard
	for _, de := range dirEntries {
		name := de.Name()
		if !strings.HasPrefix(name, "events_") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		path := filepath.Join(archiveDir, name)
		info, err := de.Info()
		if err != nil {
			return nil, err
		}
		lines, err := countLines(path)
		if err != nil {
			return nil, err
		}
		shards = append(shards, ArchiveShard{
			Quarter: strings.TrimSuffix(strings.TrimPrefix(name, "events_"), ".jsonl"),
			Path:    path,
			Lines:   lines,
			Bytes:   info.Size(),
		})
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].Quarter < shards[j].Quarter })
	return shards, nil
}

// ReadArchive parses one quarterly shard into entries. Malformed lines are
// skipped; archives are history, not a source of truth.
func ReadArchive(path string) ([]*entry.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []*entry.Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		e, err := entry.Unmarshal([]byte(line))
		if err != nil || e.ID == "" {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}
