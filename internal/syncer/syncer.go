// Package syncer keeps the derived index in step with the event log. Normal
// operation is incremental: only bytes past the stored cursor are read. Any
// doubt about the cursor (log shrank, prefix fingerprint mismatch) forces a
// full rebuild, which is always safe because the log is the source of truth.
package syncer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/evlog-dev/evlog/internal/embed"
	"github.com/evlog-dev/evlog/internal/entry"
	"github.com/evlog-dev/evlog/internal/eventlog"
	"github.com/evlog-dev/evlog/internal/index"
)

// Syncer drives log-to-index synchronization.
type Syncer struct {
	evlog    *eventlog.Log
	idx      *index.DB
	provider embed.Provider // nil disables embedding
	batch    int
	log      zerolog.Logger
}

// New creates a syncer. batchSize bounds how many texts are embedded per
// provider call; zero means 16.
func New(evlog *eventlog.Log, idx *index.DB, provider embed.Provider, batchSize int, logger zerolog.Logger) *Syncer {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Syncer{
		evlog:    evlog,
		idx:      idx,
		provider: provider,
		batch:    batchSize,
		log:      logger.With().Str("component", "sync").Logger(),
	}
}

// Result reports what one sync pass did.
type Result struct {
	FullRebuild bool         `json:"full_rebuild"`
	Reason      string       `json:"reason,omitempty"`
	Indexed     int          `json:"indexed"`
	Embedded    int          `json:"embedded"`
	Unchanged   int          `json:"unchanged"`
	Deprecated  int          `json:"deprecated"`
	Skipped     int          `json:"skipped_lines"`
	Errors      []string     `json:"errors,omitempty"`
	Cursor      index.Cursor `json:"cursor"`
}

// Sync brings the index up to date with the log. It validates the stored
// cursor first and falls back to a full rebuild when the log has been
// rewritten underneath it.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	cursor, err := s.idx.Cursor()
	if err != nil {
		return nil, err
	}
	size, err := s.evlog.Size()
	if err != nil {
		return nil, err
	}

	if reason := s.cursorInvalid(cursor, size); reason != "" {
		s.log.Info().Str("reason", reason).Msg("cursor invalid, rebuilding index")
		res, err := s.Rebuild(ctx)
		if err != nil {
			return nil, err
		}
		res.Reason = reason
		return res, nil
	}

	if size == cursor.Offset {
		return &Result{Cursor: cursor}, nil
	}

	tail, err := s.evlog.ReadFrom(cursor.Offset)
	if err != nil {
		return nil, err
	}
	// Only complete lines are consumed; a trailing partial line belongs to a
	// write still in flight and is left for the next pass.
	end := bytes.LastIndexByte(tail, '\n')
	if end < 0 {
		return &Result{Cursor: cursor}, nil
	}
	consumed := tail[:end+1]

	res := &Result{}
	winners, skipped := resolveLines(consumed)
	res.Skipped = skipped

	if err := s.apply(ctx, winners, res); err != nil {
		return nil, err
	}

	if len(res.Errors) > 0 {
		// Leave the cursor where it was so the failed range is retried.
		res.Cursor = cursor
		s.log.Warn().Int("errors", len(res.Errors)).Msg("sync incomplete, cursor not advanced")
		return res, nil
	}

	newOffset := cursor.Offset + int64(len(consumed))
	fp, err := s.fingerprint(newOffset)
	if err != nil {
		return nil, err
	}
	res.Cursor = index.Cursor{Offset: newOffset, Fingerprint: fp}
	if err := s.idx.SetCursor(res.Cursor); err != nil {
		return nil, err
	}
	s.log.Debug().Int("indexed", res.Indexed).Int64("offset", newOffset).Msg("incremental sync complete")
	return res, nil
}

// Rebuild drops the index and reconstructs it from the full log.
func (s *Syncer) Rebuild(ctx context.Context) (*Result, error) {
	if err := s.idx.Clear(); err != nil {
		return nil, err
	}
	resolved, err := s.evlog.Load()
	if err != nil {
		return nil, err
	}

	res := &Result{FullRebuild: true, Skipped: resolved.SkippedLines}
	winners := make([]*entry.Entry, 0, len(resolved.Order))
	for _, id := range resolved.Order {
		winners = append(winners, resolved.Entries[id])
	}
	if err := s.apply(ctx, winners, res); err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		s.log.Warn().Int("errors", len(res.Errors)).Msg("rebuild incomplete, cursor not set")
		return res, nil
	}

	size, err := s.evlog.Size()
	if err != nil {
		return nil, err
	}
	fp, err := s.fingerprint(size)
	if err != nil {
		return nil, err
	}
	res.Cursor = index.Cursor{Offset: size, Fingerprint: fp}
	if err := s.idx.SetCursor(res.Cursor); err != nil {
		return nil, err
	}
	s.log.Info().Int("indexed", res.Indexed).Msg("index rebuilt")
	return res, nil
}

// cursorInvalid returns a non-empty reason when the stored cursor cannot be
// trusted against the current log file.
func (s *Syncer) cursorInvalid(cursor index.Cursor, size int64) string {
	if cursor.Offset == 0 && cursor.Fingerprint == "" {
		total, _, err := s.idx.EntryCount()
		if err == nil && total > 0 {
			return "index has rows but no cursor"
		}
		if size > 0 {
			return "no cursor yet"
		}
		return ""
	}
	if size < cursor.Offset {
		return "log shrank below cursor"
	}
	fp, err := s.fingerprint(cursor.Offset)
	if err != nil {
		return "cannot fingerprint log: " + err.Error()
	}
	if fp != cursor.Fingerprint {
		return "log prefix fingerprint mismatch"
	}
	return ""
}

// fingerprint hashes the first n bytes of the log: first 16 hex chars of
// SHA-256. n == 0 hashes the empty prefix.
func (s *Syncer) fingerprint(n int64) (string, error) {
	h := sha256.New()
	if n > 0 {
		f, err := os.Open(s.evlog.Path())
		if err != nil {
			return "", err
		}
		defer f.Close()
		if _, err := io.CopyN(h, f, n); err != nil {
			return "", fmt.Errorf("fingerprint log prefix: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// resolveLines parses raw log lines and collapses duplicate ids by last
// writer wins within the batch.
func resolveLines(data []byte) ([]*entry.Entry, int) {
	lines := bytes.Split(data, []byte("\n"))
	type winner struct {
		e   *entry.Entry
		pos int
	}
	byID := make(map[string]winner)
	order := make([]string, 0, len(lines))
	skipped := 0
	for i, raw := range lines {
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		e, err := entry.Unmarshal([]byte(line))
		if err != nil || e.ID == "" {
			skipped++
			continue
		}
		prev, seen := byID[e.ID]
		if !seen {
			byID[e.ID] = winner{e, i}
			order = append(order, e.ID)
			continue
		}
		if entry.Newer(e.CreatedAt, i, prev.e.CreatedAt, prev.pos) {
			byID[e.ID] = winner{e, i}
		}
	}
	out := make([]*entry.Entry, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id].e)
	}
	return out, skipped
}

// apply indexes a batch of resolved entries: metadata always, keyword rows
// and embeddings for live entries whose derived text changed.
func (s *Syncer) apply(ctx context.Context, winners []*entry.Entry, res *Result) error {
	type pending struct {
		e    *entry.Entry
		text string
		hash string
	}
	var toEmbed []pending

	for _, e := range winners {
		text := entry.EmbeddingText(e)
		hash := entry.TextHash(text)

		prevHash, err := s.idx.TextHash(e.ID)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}

		if err := s.idx.UpsertEntry(e, hash); err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Indexed++

		if e.Deprecated {
			res.Deprecated++
			if err := s.idx.MarkDeprecated(e.ID); err != nil {
				res.Errors = append(res.Errors, err.Error())
				continue
			}
			if s.idx.FTSAvailable() {
				if err := s.idx.DeleteFTS(e.ID); err != nil {
					res.Errors = append(res.Errors, err.Error())
				}
			}
			continue
		}

		if s.idx.FTSAvailable() {
			if err := s.idx.UpsertFTS(e.ID, entry.BuildFTSFields(e)); err != nil {
				res.Errors = append(res.Errors, err.Error())
				continue
			}
		}

		// Re-embedding keys on the vector table's own fingerprint, not the
		// entry row's: the entry hash lands even when the provider fails,
		// and must not mask a missing vector on the retry pass.
		if s.provider != nil {
			vecHash, err := s.idx.VectorTextHash(e.ID)
			if err != nil {
				res.Errors = append(res.Errors, err.Error())
				continue
			}
			if vecHash != hash {
				toEmbed = append(toEmbed, pending{e, text, hash})
				continue
			}
		}
		if prevHash == hash && prevHash != "" {
			res.Unchanged++
		}
	}

	for start := 0; start < len(toEmbed); start += s.batch {
		end := start + s.batch
		if end > len(toEmbed) {
			end = len(toEmbed)
		}
		batch := toEmbed[start:end]
		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.text
		}

		vecs, err := s.embedWithRetry(ctx, texts)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("embed batch: %v", err))
			continue
		}
		for i, p := range batch {
			if err := s.idx.UpsertVector(p.e.ID, vecs[i], s.provider.Model(), p.hash); err != nil {
				res.Errors = append(res.Errors, err.Error())
				continue
			}
			res.Embedded++
		}
	}
	return nil
}

// embedWithRetry retries transient provider failures with exponential
// backoff, bounded so one bad batch cannot stall a sync for long.
func (s *Syncer) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	op := func() error {
		var err error
		vecs, err = s.provider.EmbedDocuments(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(texts) {
			return backoff.Permanent(errors.New("provider returned short batch"))
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(200*time.Millisecond),
		backoff.WithMaxElapsedTime(10*time.Second),
	), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return vecs, nil
}
