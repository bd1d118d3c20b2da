package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/evlog-dev/evlog/internal/entry"
)

var appendFile string

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Append an entry to the event log",
	Long:  "Read one entry as JSON from stdin (or --file) and append it to the event log. Missing id and created_at are filled in.",
	RunE:  runAppend,
}

func init() {
	appendCmd.Flags().StringVarP(&appendFile, "file", "f", "", "read the entry from a file instead of stdin")
}

func runAppend(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if appendFile != "" {
		f, err := os.Open(appendFile)
		if err != nil {
			return fmt.Errorf("open entry file: %w", err)
		}
		defer f.Close()
		in = f
	}

	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read entry: %w", err)
	}
	e, err := entry.Unmarshal(raw)
	if err != nil {
		return fmt.Errorf("parse entry: %w", err)
	}

	if e.ID == "" {
		primary := ""
		if len(e.Source) > 0 {
			primary = e.Source[0]
		}
		e.ID = entry.NewID(e.Type, primary, e.Title)
	}
	if e.CreatedAt == "" {
		e.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	cfg, events, err := openLogOnly()
	if err != nil {
		return err
	}

	var dupes []string
	if resolved, err := events.Load(); err == nil {
		dupes = entry.NearDuplicates(e, resolved.Entries, cfg.Evolution.TextDedupThreshold)
	}

	if err := events.Append(e); err != nil {
		return fmt.Errorf("append: %w", err)
	}

	res := entry.Validate(e)
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	for _, id := range dupes {
		fmt.Fprintf(os.Stderr, "possible duplicate of %s\n", id)
	}
	fmt.Println(e.ID)
	return nil
}

// printJSON writes v as indented JSON to stdout. Shared by the commands
// that support --json output.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
