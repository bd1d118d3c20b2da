package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evlog-dev/evlog/internal/entry"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check store health",
	Long:  "Check that the event log is readable, the index is consistent with it, and report whether compaction or a rebuild is due.",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	problems := 0

	resolved, err := app.events.Load()
	if err != nil {
		fmt.Printf("FAIL event log: %v\n", err)
		return fmt.Errorf("event log unreadable")
	}
	fmt.Printf("ok   event log: %d entries across %d lines\n", len(resolved.Entries), resolved.TotalLines)
	if resolved.SkippedLines > 0 {
		fmt.Printf("warn event log: %d corrupt lines (run `evlog repair`)\n", resolved.SkippedLines)
		problems++
	}
	if resolved.MarkerLines > 0 {
		fmt.Printf("warn event log: %d merge-conflict markers (run `evlog repair`)\n", resolved.MarkerLines)
		problems++
	}

	stats, err := app.idx.Stats()
	if err != nil {
		fmt.Printf("FAIL index: %v\n", err)
		problems++
	} else {
		fmt.Printf("ok   index: %d active entries, %d vectors, schema v%d\n",
			stats.ActiveEntries, stats.Vectors, stats.SchemaVersion)
		if !stats.FTSAvailable {
			fmt.Println("warn index: FTS5 unavailable, keyword search degraded")
		}
		size, err := app.events.Size()
		if err == nil && stats.CursorOffset != size {
			fmt.Printf("warn index: cursor at %d of %d bytes (run `evlog sync`)\n", stats.CursorOffset, size)
			problems++
		}
	}

	waste, err := app.compactor().Stats(app.cfg.Compaction.WasteThreshold)
	if err != nil {
		fmt.Printf("FAIL compaction stats: %v\n", err)
		problems++
	} else if waste.SuggestCompact {
		fmt.Printf("warn log waste ratio %.2f exceeds %.2f (run `evlog compact`)\n",
			waste.WasteRatio, app.cfg.Compaction.WasteThreshold)
	} else {
		fmt.Printf("ok   waste ratio %.2f\n", waste.WasteRatio)
	}

	// Spot-check a handful of source references rather than all of them;
	// the full pass belongs to `evlog evolve`.
	checked, failed := 0, 0
	for _, e := range resolved.Entries {
		if checked >= 5 {
			break
		}
		if e.Deprecated || len(e.Source) == 0 {
			continue
		}
		checked++
		if c := entry.VerifySource(e.Source[0], app.cfg.Memory.ProjectRoot()); c.Status == entry.SourceFail {
			failed++
			fmt.Printf("warn source gone: %s (%s)\n", e.Source[0], e.ID)
		}
	}
	if checked > 0 && failed == 0 {
		fmt.Printf("ok   sources: %d spot-checked\n", checked)
	}

	if app.provider != nil {
		fmt.Printf("ok   embedder: %s (%s)\n", app.provider.ID(), app.provider.Model())
	} else {
		fmt.Println("note no embedding provider; search runs keyword-only")
	}

	if problems > 0 {
		return fmt.Errorf("%d problems found", problems)
	}
	fmt.Println("all checks passed")
	return nil
}
