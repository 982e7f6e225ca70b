package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/claimscrub/internal/ruleset"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <rules.yaml|rules.json>",
	Short: "Validate a rule set file and store its rules",
	Long: `Import validates every rule against the invariants of its status and
stores the rules. A rule id that already exists is replaced by a new version.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate only")
}

func runImport(cmd *cobra.Command, args []string) error {
	list, err := ruleset.LoadRules(args[0])
	if err != nil {
		return err
	}
	if err := ruleset.Validate(list); err != nil {
		return err
	}
	if importDryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "%d rules valid\n", len(list))
		return nil
	}

	ctx := cmd.Context()
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	for i := range list {
		if err := a.store.SaveRule(ctx, &list[i]); err != nil {
			return err
		}
		a.logger.Info("rule imported", "rule_id", list[i].ID, "version", list[i].Version, "status", list[i].Status)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d rules imported\n", len(list))
	return nil
}
