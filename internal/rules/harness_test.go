package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solatis/claimscrub/internal/types"
)

func harnessOpts() HarnessOptions {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	return HarnessOptions{Now: func() time.Time { return now }}
}

func sampleSet() []types.SampleClaim {
	other := ncciClaim()
	other.ClaimID = "CLM-1002"
	other.ProcedureCodes = []string{"99213"}

	early := ncciClaim()
	early.ClaimID = "CLM-1003"
	early.DateOfService = day("2023-06-15")

	return []types.SampleClaim{
		{Claim: ncciClaim(), Expected: map[types.RuleID]bool{"NCCI-001": true}},
		{Claim: other, Expected: map[types.RuleID]bool{"NCCI-001": true}},
		{Claim: early},
		{Claim: lcdClaim(), Expected: map[types.RuleID]bool{"NCCI-001": false, "LCD-L35936": true}},
	}
}

func TestRunTest_Counts(t *testing.T) {
	compiled := []*CompiledRule{mustCompile(t, ncciRule()), mustCompile(t, lcdRule())}

	results, err := RunTest(context.Background(), compiled, []types.RuleID{"NCCI-001", "LCD-L35936"}, sampleSet(), harnessOpts())
	if err != nil {
		t.Fatalf("RunTest() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	ncci := results[0]
	if ncci.RuleID != "NCCI-001" || ncci.SampleSize != 4 {
		t.Errorf("result = %+v", ncci)
	}
	// CLM-1003 predates the rule: a miss, not a hit
	if ncci.Hits != 1 || ncci.Misses != 3 || ncci.Errors != 0 {
		t.Errorf("hits/misses/errors = %d/%d/%d, want 1/3/0", ncci.Hits, ncci.Misses, ncci.Errors)
	}
	if ncci.MatchRate != 0.25 {
		t.Errorf("MatchRate = %v, want 0.25", ncci.MatchRate)
	}
	if ncci.Labeled != 3 || ncci.TruePositives != 1 || ncci.FalseNegatives != 1 || ncci.TrueNegatives != 1 || ncci.FalsePositives != 0 {
		t.Errorf("confusion = %+v", ncci)
	}
	if ncci.Accuracy == nil || *ncci.Accuracy != 2.0/3.0 {
		t.Errorf("Accuracy = %v, want 2/3", ncci.Accuracy)
	}

	lcd := results[1]
	if lcd.Hits != 1 || lcd.Labeled != 1 || lcd.TruePositives != 1 {
		t.Errorf("lcd result = %+v", lcd)
	}
	if lcd.Accuracy == nil || *lcd.Accuracy != 1 {
		t.Errorf("lcd Accuracy = %v, want 1", lcd.Accuracy)
	}
}

func TestRunTest_NoLabelsNoAccuracy(t *testing.T) {
	compiled := []*CompiledRule{mustCompile(t, ncciRule())}
	samples := []types.SampleClaim{{Claim: ncciClaim()}, {Claim: lcdClaim()}}

	results, err := RunTest(context.Background(), compiled, []types.RuleID{"NCCI-001"}, samples, harnessOpts())
	if err != nil {
		t.Fatalf("RunTest() error = %v", err)
	}
	if results[0].Accuracy != nil {
		t.Errorf("Accuracy = %v, want nil without labels", *results[0].Accuracy)
	}
	if results[0].MatchRate != 0.5 {
		t.Errorf("MatchRate = %v, want 0.5", results[0].MatchRate)
	}
}

func TestRunTest_IgnoresStatus(t *testing.T) {
	draft := ncciRule()
	draft.Status = types.StatusDraft
	compiled := []*CompiledRule{mustCompile(t, draft)}

	results, err := RunTest(context.Background(), compiled, []types.RuleID{"NCCI-001"}, []types.SampleClaim{{Claim: ncciClaim()}}, harnessOpts())
	if err != nil {
		t.Fatalf("RunTest() error = %v", err)
	}
	if results[0].Hits != 1 {
		t.Errorf("draft rule Hits = %d, want 1", results[0].Hits)
	}
}

func TestRunTest_CountsErrors(t *testing.T) {
	compiled := mustCompile(t, ncciRule())
	compiled.Actions[0].Params = nil

	results, err := RunTest(context.Background(), []*CompiledRule{compiled}, []types.RuleID{"NCCI-001"},
		[]types.SampleClaim{{Claim: ncciClaim(), Expected: map[types.RuleID]bool{"NCCI-001": true}}}, harnessOpts())
	if err != nil {
		t.Fatalf("RunTest() error = %v", err)
	}
	r := results[0]
	if r.Errors != 1 || r.Hits != 0 || r.Labeled != 0 {
		t.Errorf("result = %+v, want one error and no hit", r)
	}
}

func TestRunTest_MissingDateOfServiceIsError(t *testing.T) {
	undated := ncciClaim()
	undated.DateOfService = time.Time{}
	compiled := []*CompiledRule{mustCompile(t, ncciRule())}

	results, err := RunTest(context.Background(), compiled, []types.RuleID{"NCCI-001"},
		[]types.SampleClaim{
			{Claim: ncciClaim(), Expected: map[types.RuleID]bool{"NCCI-001": true}},
			{Claim: undated, Expected: map[types.RuleID]bool{"NCCI-001": true}},
		}, harnessOpts())
	if err != nil {
		t.Fatalf("RunTest() error = %v", err)
	}
	r := results[0]
	if r.Hits != 1 || r.Misses != 0 || r.Errors != 1 {
		t.Errorf("hits/misses/errors = %d/%d/%d, want 1/0/1", r.Hits, r.Misses, r.Errors)
	}
	if r.Labeled != 1 || r.FalseNegatives != 0 {
		t.Errorf("labeled/fn = %d/%d, want 1/0", r.Labeled, r.FalseNegatives)
	}
	if r.Accuracy == nil || *r.Accuracy != 1 {
		t.Errorf("Accuracy = %v, want 1", r.Accuracy)
	}
}

func TestRunTest_Errors(t *testing.T) {
	compiled := []*CompiledRule{mustCompile(t, ncciRule())}

	_, err := RunTest(context.Background(), compiled, []types.RuleID{"NCCI-404"}, sampleSet(), harnessOpts())
	if !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("unknown rule error = %v, want ErrRuleNotFound", err)
	}

	opts := harnessOpts()
	opts.MaxSampleSize = 2
	_, err = RunTest(context.Background(), compiled, []types.RuleID{"NCCI-001"}, sampleSet(), opts)
	if !errors.Is(err, types.ErrSampleTooLarge) {
		t.Errorf("oversized sample error = %v, want ErrSampleTooLarge", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RunTest(ctx, compiled, []types.RuleID{"NCCI-001"}, sampleSet(), harnessOpts())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled error = %v, want context.Canceled", err)
	}
}

func TestRunTest_Idempotent(t *testing.T) {
	compiled := []*CompiledRule{mustCompile(t, ncciRule()), mustCompile(t, lcdRule())}
	ruleIDs := []types.RuleID{"LCD-L35936", "NCCI-001", "LCD-L35936"}

	first, err := RunTest(context.Background(), compiled, ruleIDs, sampleSet(), harnessOpts())
	if err != nil {
		t.Fatalf("RunTest() error = %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("len(results) = %d, want 2 after dedupe", len(first))
	}
	for i := 0; i < 5; i++ {
		again, err := RunTest(context.Background(), compiled, ruleIDs, sampleSet(), harnessOpts())
		if err != nil {
			t.Fatalf("RunTest() error = %v", err)
		}
		for j := range first {
			a, b := first[j], again[j]
			if a.RuleID != b.RuleID || a.Hits != b.Hits || a.Misses != b.Misses || a.Errors != b.Errors ||
				a.TruePositives != b.TruePositives || a.FalseNegatives != b.FalseNegatives {
				t.Fatalf("run %d differs: %+v vs %+v", i, a, b)
			}
		}
	}
}
