package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/claimscrub/internal/rules"
	"github.com/solatis/claimscrub/internal/types"
)

var transitionActor string

var transitionCmd = &cobra.Command{
	Use:   "transition <rule-id> <draft|testing|active|archived>",
	Short: "Move a rule through its lifecycle",
	Args:  cobra.ExactArgs(2),
	RunE:  runTransition,
}

func init() {
	rootCmd.AddCommand(transitionCmd)
	transitionCmd.Flags().StringVar(&transitionActor, "actor", "cli", "recorded as modifiedBy")
}

func runTransition(cmd *cobra.Command, args []string) error {
	id, err := types.ParseRuleID(args[0])
	if err != nil {
		return err
	}
	to := types.Status(args[1])

	ctx := cmd.Context()
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rule, err := a.store.ModifyRule(ctx, id, func(r *types.Rule) error {
		return rules.Transition(r, to, transitionActor, time.Now().UTC())
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rule)
}
