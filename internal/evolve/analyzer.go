// Package evolve analyzes store health: confidence scoring with age decay,
// duplicate clustering, deprecation candidates, and merge suggestions. It is
// strictly advisory and never writes to the event log.
package evolve

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/evlog-dev/evlog/internal/config"
	"github.com/evlog-dev/evlog/internal/embed"
	"github.com/evlog-dev/evlog/internal/index"
)

// Analyzer runs evolution checks over a resolved view of the log.
type Analyzer struct {
	cfg         config.EvolutionConfig
	staleness   int    // days from the verify section
	projectRoot string // base for source existence checks
	idx         *index.DB
	provider    embed.Provider // nil disables the vector dedup stage
	log         zerolog.Logger

	// now is injectable so decay math is testable.
	now func() time.Time
}

// New creates an analyzer. idx and provider may be nil; without them the
// duplicate stage runs on text similarity alone.
func New(cfg config.EvolutionConfig, stalenessDays int, projectRoot string, idx *index.DB, provider embed.Provider, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		cfg:         cfg,
		staleness:   stalenessDays,
		projectRoot: projectRoot,
		idx:         idx,
		provider:    provider,
		log:         logger.With().Str("component", "evolve").Logger(),
		now:         time.Now,
	}
}

// severityRank orders S1 > S2 > S3 > unset for merge ranking.
func severityRank(severity string) int {
	switch severity {
	case "S1":
		return 3
	case "S2":
		return 2
	case "S3":
		return 1
	default:
		return 0
	}
}
