package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evlog-dev/evlog/internal/entry"
)

var loadJSON bool

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Print the resolved view of the log",
	Long:  "Resolve the event log to the latest version of each entry and print them in append order.",
	RunE:  runLoad,
}

func init() {
	loadCmd.Flags().BoolVar(&loadJSON, "json", false, "print entries as a JSON array")
}

func runLoad(cmd *cobra.Command, args []string) error {
	_, events, err := openLogOnly()
	if err != nil {
		return err
	}
	resolved, err := events.Load()
	if err != nil {
		return fmt.Errorf("load log: %w", err)
	}

	if loadJSON {
		ordered := make([]*entry.Entry, 0, len(resolved.Order))
		for _, id := range resolved.Order {
			ordered = append(ordered, resolved.Entries[id])
		}
		return printJSON(ordered)
	}

	for _, id := range resolved.Order {
		e := resolved.Entries[id]
		status := ""
		if e.Deprecated {
			status = " (deprecated)"
		}
		fmt.Printf("%s%s\n  %s\n", e.ID, status, e.Title)
	}
	if resolved.SkippedLines > 0 {
		fmt.Printf("\n%d corrupt lines skipped\n", resolved.SkippedLines)
	}
	return nil
}
