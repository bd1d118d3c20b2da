package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/evlog-dev/evlog/internal/compact"
	"github.com/evlog-dev/evlog/internal/config"
	"github.com/evlog-dev/evlog/internal/embed"
	"github.com/evlog-dev/evlog/internal/eventlog"
	"github.com/evlog-dev/evlog/internal/evolve"
	"github.com/evlog-dev/evlog/internal/index"
	"github.com/evlog-dev/evlog/internal/search"
	"github.com/evlog-dev/evlog/internal/syncer"
)

// app bundles the components a command needs, built once from config.
// Commands that never touch the index (append, repair) use openLogOnly
// instead and skip the database open entirely.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	events   *eventlog.Log
	idx      *index.DB
	provider embed.Provider
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log)

	idx, err := index.Open(cfg.Memory.IndexPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &app{
		cfg:      cfg,
		log:      logger,
		events:   eventlog.Open(cfg.Memory.EventsPath(), logger),
		idx:      idx,
		provider: embed.Resolve(ctx, cfg.Embedding, logger),
	}, nil
}

func (a *app) Close() {
	if a.idx != nil {
		a.idx.Close()
	}
}

func (a *app) searcher() *search.Searcher {
	return search.New(a.idx, a.provider, a.cfg.Search, a.log)
}

func (a *app) syncer() *syncer.Syncer {
	return syncer.New(a.events, a.idx, a.provider, a.cfg.Embedding.BatchSize, a.log)
}

func (a *app) analyzer() *evolve.Analyzer {
	return evolve.New(a.cfg.Evolution, a.cfg.Verify.StalenessDays, a.cfg.Memory.ProjectRoot(), a.idx, a.provider, a.log)
}

func (a *app) compactor() *compact.Compactor {
	return compact.New(a.events, a.cfg.Memory.ArchiveDir(), a.idx, a.cfg.Compaction.SortOutput, a.log)
}

// openLogOnly opens just the event log. Append and repair work on the log
// alone; the next sync reconciles the index.
func openLogOnly() (config.Config, *eventlog.Log, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := newLogger(cfg.Log)
	return cfg, eventlog.Open(cfg.Memory.EventsPath(), logger), nil
}
