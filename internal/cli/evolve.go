package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evlog-dev/evlog/internal/evolve"
)

var (
	evolveDuplicates   bool
	evolveConfidence   bool
	evolveDeprecations bool
	evolveMerges       bool
	evolveJSON         bool
)

var evolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Analyze store health",
	Long:  "Score every active entry's confidence, cluster likely duplicates, and list deprecation candidates. The report is advisory; nothing is modified. Section flags limit the output, the analysis always runs in full.",
	RunE:  runEvolve,
}

func init() {
	evolveCmd.Flags().BoolVar(&evolveDuplicates, "duplicates", false, "show only duplicate clusters")
	evolveCmd.Flags().BoolVar(&evolveConfidence, "confidence", false, "show only per-entry confidence")
	evolveCmd.Flags().BoolVar(&evolveDeprecations, "deprecations", false, "show only deprecation candidates")
	evolveCmd.Flags().BoolVar(&evolveMerges, "merges", false, "show only merge suggestions")
	evolveCmd.Flags().BoolVar(&evolveJSON, "json", false, "print as JSON")
}

func runEvolve(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	resolved, err := app.events.Load()
	if err != nil {
		return fmt.Errorf("load log: %w", err)
	}
	report := app.analyzer().Analyze(cmd.Context(), resolved.Entries)

	sections := evolveDuplicates || evolveConfidence || evolveDeprecations || evolveMerges

	if evolveJSON {
		switch {
		case !sections:
			return printJSON(report)
		case evolveDuplicates:
			return printJSON(report.Duplicates)
		case evolveConfidence:
			return printJSON(report.Confidences)
		case evolveDeprecations:
			return printJSON(report.Deprecations)
		default:
			return printJSON(report.Merges)
		}
	}

	if !sections {
		fmt.Printf("entries: %d active, %d deprecated\n", report.ActiveEntries, report.DeprecatedEntries)
		fmt.Printf("health: %.2f (%d high / %d medium / %d low confidence)\n",
			report.HealthScore, report.HighConfidence, report.MediumConfidence, report.LowConfidence)
	}
	if !sections || evolveConfidence {
		printConfidences(report.Confidences)
	}
	if !sections || evolveDuplicates {
		printDuplicates(report.Duplicates)
	}
	if !sections || evolveMerges {
		printMerges(report.Merges)
	}
	if !sections || evolveDeprecations {
		printDeprecations(report.Deprecations)
	}
	return nil
}

func printConfidences(scores []evolve.Confidence) {
	if len(scores) == 0 {
		return
	}
	fmt.Println("\nconfidence:")
	for _, c := range scores {
		fmt.Printf("  [%.2f %s] %s\n", c.Score, c.Classification, c.EntryID)
	}
}

func printDuplicates(d *evolve.DuplicateReport) {
	if d == nil || len(d.Groups) == 0 {
		return
	}
	fmt.Printf("\nduplicate groups (%s):\n", d.Mode)
	for _, g := range d.Groups {
		fmt.Printf("  %s + %d more (avg similarity %.2f)\n", g.CanonicalID, len(g.MemberIDs)-1, g.AvgSimilarity)
	}
}

func printMerges(merges []evolve.MergeSuggestion) {
	if len(merges) == 0 {
		return
	}
	fmt.Println("\nmerge suggestions:")
	for _, m := range merges {
		fmt.Printf("  keep %s, deprecate %v (%s)\n", m.KeepID, m.DeprecateIDs, m.Reason)
	}
}

func printDeprecations(d *evolve.DeprecationReport) {
	if d == nil || len(d.Candidates) == 0 {
		return
	}
	fmt.Println("\ndeprecation candidates:")
	for _, c := range d.Candidates {
		fmt.Printf("  [%.2f] %s (%s)\n", c.Confidence, c.EntryID, c.Action)
	}
}
