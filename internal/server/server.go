// Package server exposes the store over a local HTTP API.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/evlog-dev/evlog/internal/compact"
	"github.com/evlog-dev/evlog/internal/config"
	"github.com/evlog-dev/evlog/internal/eventlog"
	"github.com/evlog-dev/evlog/internal/evolve"
	"github.com/evlog-dev/evlog/internal/index"
	"github.com/evlog-dev/evlog/internal/search"
	"github.com/evlog-dev/evlog/internal/syncer"
)

// Deps bundles the components the API serves.
type Deps struct {
	Cfg       config.Config
	EventLog  *eventlog.Log
	Index     *index.DB
	Searcher  *search.Searcher
	Syncer    *syncer.Syncer
	Analyzer  *evolve.Analyzer
	Compactor *compact.Compactor
	Version   string
	Logger    zerolog.Logger
}

// Server is the evlog HTTP API server.
type Server struct {
	deps    Deps
	router  chi.Router
	started time.Time
	log     zerolog.Logger
}

// New creates a server over the given components.
func New(deps Deps) *Server {
	s := &Server{
		deps:    deps,
		started: time.Now(),
		log:     deps.Logger.With().Str("component", "server").Logger(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/search", s.handleSearch)
		r.Get("/stats", s.handleStats)
		r.Get("/evolution", s.handleEvolution)
		r.Post("/entries", s.handleAppend)
		r.Post("/sync", s.handleSync)
		r.Post("/compact", s.handleCompact)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	indexOK := true
	if err := s.deps.Index.Ping(); err != nil {
		indexOK = false
	}
	logOK := true
	if _, err := s.deps.EventLog.Size(); err != nil {
		logOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.deps.Version,
		"uptime":  time.Since(s.started).Seconds(),
		"index":   indexOK,
		"log":     logOK,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
