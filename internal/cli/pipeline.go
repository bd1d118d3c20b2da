package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evlog-dev/evlog/internal/pipeline"
)

var pipelineJSON bool

var pipelineCmd = &cobra.Command{
	Use:   "pipeline [steps...]",
	Short: "Run the maintenance pipeline",
	Long:  "Run the configured maintenance steps in order. A failing step is recorded and skipped past; transient steps (sync) are retried with backoff. Known steps: sync, index-regeneration, evolution-check.",
	RunE:  runPipeline,
}

func init() {
	pipelineCmd.Flags().BoolVar(&pipelineJSON, "json", false, "print the report as JSON")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	runner := pipeline.NewRunner(app.cfg.Pipeline.MaxAttempts, app.log)
	registerSteps(runner, app)

	steps := app.cfg.Pipeline.Steps
	if len(args) > 0 {
		steps = args
	}

	report := runner.Run(cmd.Context(), steps)

	if pipelineJSON {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		fmt.Print(report.String())
	}
	if !report.OK() {
		return fmt.Errorf("%d of %d steps failed", report.Failed, len(report.Steps))
	}
	return nil
}

// registerSteps binds the known step names to the app's components. Sync is
// the only transient step: embedding providers come and go, the others fail
// for reasons a retry will not fix.
func registerSteps(r *pipeline.Runner, app *app) {
	r.Register(pipeline.Step{
		Name:      "sync",
		Transient: true,
		Run: func(ctx context.Context) (any, error) {
			res, err := app.syncer().Sync(ctx)
			if err != nil {
				return nil, err
			}
			if len(res.Errors) > 0 {
				return nil, fmt.Errorf("%d entries failed: %s", len(res.Errors), res.Errors[0])
			}
			return fmt.Sprintf("indexed %d, embedded %d", res.Indexed, res.Embedded), nil
		},
	})
	r.Register(pipeline.Step{
		Name: "index-regeneration",
		Run: func(ctx context.Context) (any, error) {
			res, err := app.syncer().Rebuild(ctx)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("rebuilt %d entries", res.Indexed), nil
		},
	})
	r.Register(pipeline.Step{
		Name: "evolution-check",
		Run: func(ctx context.Context) (any, error) {
			resolved, err := app.events.Load()
			if err != nil {
				return nil, err
			}
			report := app.analyzer().Analyze(ctx, resolved.Entries)
			return fmt.Sprintf("health %.2f, %d deprecation candidates",
				report.HealthScore, len(report.Deprecations.Candidates)), nil
		},
	})
}
