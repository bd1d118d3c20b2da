package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evlog-dev/evlog/internal/syncer"
)

var (
	syncFull    bool
	syncJSON    bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the index with the event log",
	Long:  "Index log lines appended since the last sync. A moved cursor, a shrunken log, or --full forces a full regeneration from scratch.",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "drop the index and regenerate it from the full log")
	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "print the result as JSON")
}

func runSync(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	s := app.syncer()
	var res *syncer.Result
	if syncFull {
		res, err = s.Rebuild(cmd.Context())
		if err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
	} else {
		res, err = s.Sync(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
	}

	if syncJSON {
		return printJSON(res)
	}
	if res.FullRebuild {
		fmt.Printf("full rebuild (%s)\n", res.Reason)
	}
	fmt.Printf("indexed %d, embedded %d, unchanged %d, deprecated %d\n",
		res.Indexed, res.Embedded, res.Unchanged, res.Deprecated)
	for _, e := range res.Errors {
		fmt.Printf("error: %s\n", e)
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("sync finished with %d errors; cursor held back", len(res.Errors))
	}
	return nil
}
