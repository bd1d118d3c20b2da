// Package pipeline runs named maintenance steps in sequence with failure
// isolation: one failing step is recorded and the rest still run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Step is one named unit of pipeline work. Transient steps are retried with
// exponential backoff on failure; the rest fail after one attempt.
type Step struct {
	Name      string
	Transient bool
	Run       func(ctx context.Context) (any, error)
}

// StepStatus is the terminal state of a step within one run.
type StepStatus string

const (
	StatusOK      StepStatus = "ok"
	StatusFailed  StepStatus = "failed"
	StatusUnknown StepStatus = "unknown-step"
)

// StepResult reports one step's outcome.
type StepResult struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	Detail     any        `json:"detail,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

// Report is the outcome of one pipeline run.
type Report struct {
	Steps  []StepResult `json:"steps"`
	Failed int          `json:"failed"`
}

// OK reports whether every step succeeded.
func (r *Report) OK() bool { return r.Failed == 0 }

// Runner holds the registered steps and retry policy.
type Runner struct {
	steps       map[string]Step
	maxAttempts int
	log         zerolog.Logger
}

// NewRunner creates a runner. maxAttempts bounds tries per transient step;
// values below 1 read as 1.
func NewRunner(maxAttempts int, logger zerolog.Logger) *Runner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Runner{
		steps:       make(map[string]Step),
		maxAttempts: maxAttempts,
		log:         logger.With().Str("component", "pipeline").Logger(),
	}
}

// Register adds or replaces a step by name.
func (r *Runner) Register(s Step) {
	r.steps[s.Name] = s
}

// Run executes the named steps in order. Unknown names and failures are
// recorded in the report; neither stops the remaining steps. A canceled
// context stops the run at the next step boundary.
func (r *Runner) Run(ctx context.Context, names []string) *Report {
	report := &Report{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			report.Steps = append(report.Steps, StepResult{
				Name: name, Status: StatusFailed, Error: err.Error(),
			})
			report.Failed++
			continue
		}

		step, ok := r.steps[name]
		if !ok {
			r.log.Warn().Str("step", name).Msg("unknown pipeline step")
			report.Steps = append(report.Steps, StepResult{Name: name, Status: StatusUnknown})
			report.Failed++
			continue
		}

		result := r.runStep(ctx, step)
		if result.Status != StatusOK {
			report.Failed++
		}
		report.Steps = append(report.Steps, result)
	}
	return report
}

func (r *Runner) runStep(ctx context.Context, step Step) StepResult {
	result := StepResult{Name: step.Name}
	start := time.Now()
	defer func() {
		result.DurationMS = time.Since(start).Milliseconds()
	}()

	attempts := 1
	if step.Transient {
		attempts = r.maxAttempts
	}

	op := func() error {
		result.Attempts++
		detail, err := step.Run(ctx)
		if err != nil {
			r.log.Warn().Str("step", step.Name).Int("attempt", result.Attempts).Err(err).Msg("pipeline step failed")
			return err
		}
		result.Detail = detail
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(500*time.Millisecond),
		), uint64(attempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		return result
	}
	result.Status = StatusOK
	r.log.Debug().Str("step", step.Name).Int64("ms", time.Since(start).Milliseconds()).Msg("pipeline step done")
	return result
}

// String renders a compact human summary, one line per step.
func (r *Report) String() string {
	out := ""
	for _, s := range r.Steps {
		out += fmt.Sprintf("%-20s %-12s %4dms", s.Name, s.Status, s.DurationMS)
		if s.Error != "" {
			out += "  " + s.Error
		}
		out += "\n"
	}
	return out
}
