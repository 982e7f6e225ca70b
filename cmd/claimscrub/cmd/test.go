package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/claimscrub/internal/ruleset"
	"github.com/solatis/claimscrub/internal/types"
)

var testRuleIDs []string

var testCmd = &cobra.Command{
	Use:   "test <samples.jsonl>",
	Short: "Replay sample claims through rules and attach the results",
	Long: `Test runs every sample claim through each --rule in isolation, ignoring
rule status, and prints the match rate (and accuracy when samples carry
labels). Results are attached to the rules, which lets a draft move to testing.`,
	Args: cobra.ExactArgs(1),
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
	addConfigFlags(testCmd, "max-samples", "test-timeout")
	testCmd.Flags().StringSliceVar(&testRuleIDs, "rule", nil, "rule id to test (repeatable)")
	_ = testCmd.MarkFlagRequired("rule")
}

func runTest(cmd *cobra.Command, args []string) error {
	samples, err := ruleset.LoadSamples(args[0])
	if err != nil {
		return err
	}
	ids := make([]types.RuleID, 0, len(testRuleIDs))
	for _, raw := range testRuleIDs {
		id, err := types.ParseRuleID(raw)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

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

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.TestTimeout)
	defer cancel()
	results, err := engine.RunTest(runCtx, ids, samples)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := a.store.AttachTestResult(ctx, r); err != nil {
			return fmt.Errorf("attach result for %s: %w", r.RuleID, err)
		}
	}
	return printJSON(cmd.OutOrStdout(), results)
}
