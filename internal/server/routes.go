package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/evlog-dev/evlog/internal/entry"
	"github.com/evlog-dev/evlog/internal/search"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}

	mode := search.Mode(r.URL.Query().Get("mode"))
	switch mode {
	case "", search.ModeHybrid, search.ModeVector, search.ModeKeyword, search.ModeBasic:
	default:
		writeError(w, http.StatusBadRequest, "unknown mode")
		return
	}

	resolved, err := s.deps.EventLog.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	report, err := s.deps.Searcher.SearchWith(r.Context(), query, resolved.Entries, mode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var e entry.Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if e.ID == "" {
		primary := ""
		if len(e.Source) > 0 {
			primary = e.Source[0]
		}
		e.ID = entry.NewID(e.Type, primary, e.Title)
	}
	if e.CreatedAt == "" {
		e.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	res := entry.Validate(&e)
	if err := res.Err(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "schema violation",
			"errors": res.Errors,
		})
		return
	}
	// Duplicate check runs against the view before the write; it advises,
	// never blocks.
	var dupes []string
	if resolved, err := s.deps.EventLog.Load(); err == nil {
		dupes = entry.NearDuplicates(&e, resolved.Entries, s.deps.Cfg.Evolution.TextDedupThreshold)
	}

	if err := s.deps.EventLog.Append(&e); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         e.ID,
		"warnings":   res.Warnings,
		"duplicates": dupes,
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Syncer.Sync(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if len(res.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, res)
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	report, err := s.deps.Compactor.Compact(dryRun)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleEvolution(w http.ResponseWriter, r *http.Request) {
	resolved, err := s.deps.EventLog.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Analyzer.Analyze(r.Context(), resolved.Entries))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	idxStats, err := s.deps.Index.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	wasteStats, err := s.deps.Compactor.Stats(s.deps.Cfg.Compaction.WasteThreshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"index": idxStats,
		"log":   wasteStats,
	})
}
