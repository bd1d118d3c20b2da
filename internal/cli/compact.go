package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evlog-dev/evlog/internal/compact"
)

var (
	compactDryRun bool
	compactStats  bool
	compactJSON   bool
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the event log, archiving dead lines",
	Long:  "Archive superseded and deprecated lines into quarterly shards and rewrite the hot log with only the active winners. --stats reports the waste ratio without touching anything.",
	RunE:  runCompact,
}

func init() {
	compactCmd.Flags().BoolVar(&compactDryRun, "dry-run", false, "report what would change without writing")
	compactCmd.Flags().BoolVar(&compactStats, "stats", false, "only print the waste analysis")
	compactCmd.Flags().BoolVar(&compactJSON, "json", false, "print the report as JSON")
}

func runCompact(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	c := app.compactor()

	if compactStats {
		stats, err := c.Stats(app.cfg.Compaction.WasteThreshold)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		if compactJSON {
			return printJSON(stats)
		}
		fmt.Printf("lines: %d total, %d active, %d superseded, %d deprecated, %d corrupt\n",
			stats.TotalLines, stats.ActiveEntries, stats.SupersededLines, stats.DeprecatedEntries, stats.CorruptLines)
		fmt.Printf("waste ratio: %.2f (threshold %.2f)\n", stats.WasteRatio, app.cfg.Compaction.WasteThreshold)
		if stats.SuggestCompact {
			fmt.Println("compaction suggested")
		}
		shards, err := compact.ListArchives(app.cfg.Memory.ArchiveDir())
		if err != nil {
			return fmt.Errorf("list archives: %w", err)
		}
		for _, s := range shards {
			fmt.Printf("archive %s: %d lines (%d bytes)\n", s.Quarter, s.Lines, s.Bytes)
		}
		return nil
	}

	report, err := c.Compact(compactDryRun)
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}
	if compactJSON {
		return printJSON(report)
	}
	verb := "compacted"
	if report.DryRun {
		verb = "would compact"
	}
	fmt.Printf("%s: %d lines -> %d, kept %d entries, archived %d across %v\n",
		verb, report.LinesBefore, report.LinesAfter, report.EntriesKept, report.LinesArchived, report.QuartersTouched)
	return nil
}
