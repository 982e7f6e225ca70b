package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var conflictsNoSave bool

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Detect conflicts between active and testing rules",
	Long: `Conflicts compares stored rules pairwise and prints the report as JSON.
A complete run replaces the stored conflicts, keeping resolutions; a run cut
short by --budget or --conflict-wait is printed but not stored.`,
	Args: cobra.NoArgs,
	RunE: runConflicts,
}

func init() {
	rootCmd.AddCommand(conflictsCmd)
	addConfigFlags(conflictsCmd, "budget", "conflict-wait")
	conflictsCmd.Flags().BoolVar(&conflictsNoSave, "no-save", false, "print the report without storing it")
}

func runConflicts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.loadedEngine(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.ConflictTimeout)
	report := engine.DetectConflicts(runCtx)
	cancel()

	if !report.Truncated && !conflictsNoSave {
		stored, err := a.store.ReplaceConflicts(ctx, report.Conflicts)
		if err != nil {
			return err
		}
		report.Conflicts = stored
	}
	return printJSON(cmd.OutOrStdout(), report)
}
