package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evlog-dev/evlog/internal/search"
)

var (
	searchMode  string
	searchLimit int
	searchDebug bool
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search entries",
	Long:  "Search the store with the best available tier: hybrid when embeddings and keyword index are up, degrading through vector, keyword, and token overlap. --mode forces a tier.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchMode, "mode", "", "force a tier: hybrid, vector, keyword, or basic")
	searchCmd.Flags().IntVarP(&searchLimit, "max-results", "n", 0, "max results (0 uses the configured default)")
	searchCmd.Flags().BoolVar(&searchDebug, "debug", false, "show per-tier sub-scores")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print the full report as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	var mode search.Mode
	switch searchMode {
	case "":
	case string(search.ModeHybrid), string(search.ModeVector), string(search.ModeKeyword), string(search.ModeBasic):
		mode = search.Mode(searchMode)
	default:
		return fmt.Errorf("unknown mode %q (hybrid, vector, keyword, basic)", searchMode)
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if searchLimit > 0 {
		app.cfg.Search.MaxResults = searchLimit
	}

	resolved, err := app.events.Load()
	if err != nil {
		return fmt.Errorf("load log: %w", err)
	}
	report, err := app.searcher().SearchWith(cmd.Context(), query, resolved.Entries, mode)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if searchJSON {
		return printJSON(report)
	}

	if report.Degraded != "" {
		fmt.Printf("mode: %s (%s)\n\n", report.Mode, report.Degraded)
	} else {
		fmt.Printf("mode: %s\n\n", report.Mode)
	}
	if len(report.Results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range report.Results {
		fmt.Printf("%d. [%.3f] %s\n", i+1, r.Score, r.Entry.ID)
		fmt.Printf("   %s [%s/%s %s]\n", r.Entry.Title, r.Entry.Classification, r.Entry.Severity, r.Entry.Type)
		if r.Entry.Rule != nil && *r.Entry.Rule != "" {
			fmt.Printf("   rule: %s\n", *r.Entry.Rule)
		}
		if searchDebug {
			fmt.Printf("   keyword=%.3f vector=%.3f boost=%.3f\n", r.Keyword, r.Vector, r.Boost)
		}
	}
	return nil
}
