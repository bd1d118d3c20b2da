package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var repairDryRun bool

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Repair a damaged event log",
	Long:  "Drop corrupt lines and merge-conflict markers, keep the latest version of each entry, and rewrite the log. The original is saved as a .bak file first.",
	RunE:  runRepair,
}

func init() {
	repairCmd.Flags().BoolVar(&repairDryRun, "dry-run", false, "report what would change without writing")
}

func runRepair(cmd *cobra.Command, args []string) error {
	_, events, err := openLogOnly()
	if err != nil {
		return err
	}

	report, err := events.Repair(repairDryRun)
	if err != nil {
		return fmt.Errorf("repair: %w", err)
	}

	if !report.Changed() {
		fmt.Println("log is clean, nothing to repair")
		return nil
	}
	verb := "repaired"
	if report.DryRun {
		verb = "would repair"
	}
	fmt.Printf("%s: %d lines -> %d entries (%d duplicates, %d corrupt, %d markers dropped)\n",
		verb, report.TotalLines, report.KeptEntries, report.DroppedDupes, report.DroppedCorrupt, report.MarkersRemoved)
	if report.BackupPath != "" {
		fmt.Printf("backup: %s\n", report.BackupPath)
	}
	return nil
}
