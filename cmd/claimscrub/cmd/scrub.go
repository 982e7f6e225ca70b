package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/claimscrub/internal/ruleset"
)

var (
	scrubAsOf   string
	scrubOut    string
	scrubSave   bool
	scrubTenant string
)

var scrubCmd = &cobra.Command{
	Use:   "scrub <claims.jsonl>",
	Short: "Scrub a file of claims and write one JSON report per line",
	Args:  cobra.ExactArgs(1),
	RunE:  runScrub,
}

func init() {
	rootCmd.AddCommand(scrubCmd)
	addConfigFlags(scrubCmd, "stop-on-deny", "workers")
	scrubCmd.Flags().StringVar(&scrubAsOf, "as-of", "", "evaluation date YYYY-MM-DD (default: each claim's date of service)")
	scrubCmd.Flags().StringVarP(&scrubOut, "out", "o", "", "report file (default stdout)")
	scrubCmd.Flags().BoolVar(&scrubSave, "save", false, "store the reports in the database")
	scrubCmd.Flags().StringVar(&scrubTenant, "tenant", "cli", "tenant recorded with stored reports")
}

func runScrub(cmd *cobra.Command, args []string) error {
	var asOf time.Time
	if scrubAsOf != "" {
		t, err := time.Parse("2006-01-02", scrubAsOf)
		if err != nil {
			return fmt.Errorf("--as-of: %w", err)
		}
		asOf = t
	}
	claims, err := ruleset.LoadClaims(args[0])
	if err != nil {
		return err
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
	reports, err := engine.ScrubBatch(ctx, claims, asOf)
	if err != nil {
		return err
	}

	if scrubSave {
		for i := range reports {
			if err := a.store.SaveScrubReport(ctx, scrubTenant, &reports[i]); err != nil {
				return err
			}
		}
	}

	out := cmd.OutOrStdout()
	if scrubOut != "" {
		f, err := os.Create(scrubOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := ruleset.EncodeJSONL(out, reports); err != nil {
		return err
	}

	denied := 0
	for _, r := range reports {
		if r.Denied {
			denied++
		}
	}
	a.logger.Info("claims scrubbed", "claims", len(reports), "denied", denied)
	return nil
}
