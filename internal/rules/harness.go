// internal/rules/harness.go
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/solatis/claimscrub/internal/types"
)

/*
 * Test harness.
 *
 * Replays sample claims through individual rules and tallies the outcome,
 * so a draft can be judged before promotion.
 *
 * Per rule and sample:
 *   1. Select the rule against the claim as of its date of service (status
 *      ignored, scope and effective window applied)
 *   2. Evaluate conditions
 *   3. On match, dispatch actions; a dispatch error counts as an error
 *
 * Out-of-scope or out-of-window samples count as misses. Evaluation errors
 * count separately and never as hits. A sample without a date of service
 * has no effective window to test against and counts as an error.
 *
 * MatchRate is hits / sampleSize. Accuracy is only computed over samples
 * labeled for the rule ((TP+TN) / labeled) and is nil without labels.
 *
 * Rules are independent; results follow the requested id order. No hidden
 * randomness, so repeated runs give identical counts.
 */

// HarnessOptions bounds a test run.
type HarnessOptions struct {
	MaxSampleSize int              // 0 = unlimited
	Now           func() time.Time // ranAt and duration clock; defaults to time.Now
}

// RunTest replays samples through each rule named in ruleIDs.
func RunTest(ctx context.Context, rules []*CompiledRule, ruleIDs []types.RuleID, samples []types.SampleClaim, opts HarnessOptions) ([]types.TestResult, error) {
	if opts.MaxSampleSize > 0 && len(samples) > opts.MaxSampleSize {
		return nil, fmt.Errorf("%w: %d samples, limit %d", types.ErrSampleTooLarge, len(samples), opts.MaxSampleSize)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	byID := make(map[types.RuleID]*CompiledRule, len(rules))
	for _, r := range rules {
		if r == nil {
			continue
		}
		if _, dup := byID[r.RuleID]; !dup {
			byID[r.RuleID] = r
		}
	}

	seen := make(map[types.RuleID]struct{}, len(ruleIDs))
	targets := make([]*CompiledRule, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rule, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
		}
		targets = append(targets, rule)
	}

	results := make([]types.TestResult, 0, len(targets))
	for _, rule := range targets {
		result, err := testRule(ctx, rule, samples, now)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func testRule(ctx context.Context, rule *CompiledRule, samples []types.SampleClaim, now func() time.Time) (types.TestResult, error) {
	start := now()
	result := types.TestResult{
		RuleID:     rule.RuleID,
		SampleSize: len(samples),
	}
	single := []*CompiledRule{rule}

	for i := range samples {
		if err := ctx.Err(); err != nil {
			return types.TestResult{}, fmt.Errorf("test run for rule %s: %w", rule.RuleID, err)
		}

		sample := &samples[i]
		matched, err := replay(rule, single, &sample.Claim)
		switch {
		case err != nil:
			result.Errors++
			continue
		case matched:
			result.Hits++
		default:
			result.Misses++
		}

		expected, labeled := sample.Expected[rule.RuleID]
		if !labeled {
			continue
		}
		result.Labeled++
		switch {
		case matched && expected:
			result.TruePositives++
		case matched && !expected:
			result.FalsePositives++
		case !matched && expected:
			result.FalseNegatives++
		default:
			result.TrueNegatives++
		}
	}

	if result.SampleSize > 0 {
		result.MatchRate = float64(result.Hits) / float64(result.SampleSize)
	}
	if result.Labeled > 0 {
		acc := float64(result.TruePositives+result.TrueNegatives) / float64(result.Labeled)
		result.Accuracy = &acc
	}
	result.RanAt = now().UTC()
	result.ExecutionTime = result.RanAt.Sub(start.UTC())
	return result, nil
}

// replay runs select -> evaluate -> dispatch for one rule and one claim.
func replay(rule *CompiledRule, single []*CompiledRule, claim *types.Claim) (bool, error) {
	if claim.DateOfService.IsZero() {
		return false, fmt.Errorf("claim %s: %w", claim.ClaimID, types.ErrMissingDateOfService)
	}
	if len(selectRules(claim, single, claim.DateOfService, false)) == 0 {
		return false, nil
	}
	match, err := Evaluate(rule, claim)
	if err != nil {
		return false, err
	}
	if !match.Matched {
		return false, nil
	}
	if _, err := Apply(rule, claim); err != nil {
		return false, err
	}
	return true, nil
}
