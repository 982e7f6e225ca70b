// internal/rules/engine.go
package rules

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solatis/claimscrub/internal/types"
)

/*
 * Engine: the scrubbing pipeline over an immutable rule snapshot.
 *
 * Load compiles a rule set and swaps it in atomically. In-flight scrubs keep
 * the snapshot they started with, so rule updates never race evaluation.
 *
 * Scrub pipeline per claim:
 *   1. SelectCandidates (active, in effect as of asOf, scope match)
 *   2. Evaluate each candidate in priority order
 *   3. Apply actions of matched rules
 *   4. With stop-on-deny, the first terminal outcome skips the remaining
 *      lower-priority rules (recorded as Skipped)
 *
 * A rule that fails to evaluate records its error and scrubbing continues
 * with the next rule; one bad rule never hides the others.
 *
 * ScrubBatch fans claims out over a bounded errgroup. Claims are
 * independent; report order follows input order.
 */

// RuleSet is an immutable compiled snapshot.
type RuleSet struct {
	Rules    []*CompiledRule
	ETag     string
	LoadedAt time.Time

	byID map[types.RuleID]*CompiledRule
}

// Rule returns the compiled rule with id, if loaded.
func (rs *RuleSet) Rule(id types.RuleID) (*CompiledRule, bool) {
	r, ok := rs.byID[id]
	return r, ok
}

// RuleResult records what one candidate rule did to a claim.
type RuleResult struct {
	RuleID   types.RuleID    `json:"ruleId"`
	RuleName string          `json:"ruleName"`
	Priority int             `json:"priority"`
	Matched  bool            `json:"matched"`
	Skipped  bool            `json:"skipped,omitempty"`
	Outcomes []ActionOutcome `json:"outcomes,omitempty"`
	Error    string          `json:"error,omitempty"`
	Err      error           `json:"-"`
}

// ScrubReport is the result of scrubbing one claim.
type ScrubReport struct {
	ScrubID     types.ScrubID `json:"scrubId"`
	ClaimID     string        `json:"claimId"`
	AsOf        time.Time     `json:"asOf"`
	EvaluatedAt time.Time     `json:"evaluatedAt"`
	RuleSetETag string        `json:"ruleSetEtag"`
	Results     []RuleResult  `json:"results"`
	Denied      bool          `json:"denied"`
	DeniedBy    types.RuleID  `json:"deniedBy,omitempty"`
}

// Outcomes flattens the action outcomes of every matched rule in order.
func (r *ScrubReport) Outcomes() []ActionOutcome {
	var out []ActionOutcome
	for _, res := range r.Results {
		out = append(out, res.Outcomes...)
	}
	return out
}

// Errors counts rules that failed to evaluate.
func (r *ScrubReport) Errors() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil || res.Error != "" {
			n++
		}
	}
	return n
}

// Engine evaluates claims against the current rule snapshot.
type Engine struct {
	snapshot   atomic.Pointer[RuleSet]
	stopOnDeny bool
	workers    int
	logger     *slog.Logger
	detector   DetectorOptions
	harness    HarnessOptions
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStopOnDeny stops evaluating lower-priority rules after a deny_claim.
func WithStopOnDeny(stop bool) Option {
	return func(e *Engine) { e.stopOnDeny = stop }
}

// WithWorkers bounds ScrubBatch concurrency.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDetectorOptions sets conflict detection bounds.
func WithDetectorOptions(opts DetectorOptions) Option {
	return func(e *Engine) { e.detector = opts }
}

// WithHarnessOptions sets test harness bounds.
func WithHarnessOptions(opts HarnessOptions) Option {
	return func(e *Engine) { e.harness = opts }
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine with an empty rule set.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.detector.Now == nil {
		e.detector.Now = e.now
	}
	if e.harness.Now == nil {
		e.harness.Now = e.now
	}
	e.snapshot.Store(&RuleSet{byID: map[types.RuleID]*CompiledRule{}, ETag: ComputeETag(nil), LoadedAt: e.now().UTC()})
	return e
}

// Load compiles rules and swaps them in as the current snapshot.
// Archived rules are dropped. Rules that fail to compile are skipped; their
// errors are joined into the returned error while the valid rules still load.
func (e *Engine) Load(rules []types.Rule) error {
	compiled := make([]*CompiledRule, 0, len(rules))
	byID := make(map[types.RuleID]*CompiledRule, len(rules))
	var errs []error

	for i := range rules {
		rule := &rules[i]
		if rule.Status == types.StatusArchived {
			continue
		}
		if _, dup := byID[rule.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate rule id %s", types.ErrRuleValidation, rule.ID))
			continue
		}
		cr, err := Compile(rule)
		if err != nil {
			e.logger.Warn("skipping invalid rule", "rule_id", rule.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		compiled = append(compiled, cr)
		byID[cr.RuleID] = cr
	}

	rs := &RuleSet{
		Rules:    compiled,
		ETag:     ComputeETag(rules),
		LoadedAt: e.now().UTC(),
		byID:     byID,
	}
	e.snapshot.Store(rs)
	e.logger.Info("rule set loaded", "rules", len(compiled), "skipped", len(errs), "etag", rs.ETag)

	return errors.Join(errs...)
}

// Snapshot returns the current rule set.
func (e *Engine) Snapshot() *RuleSet {
	return e.snapshot.Load()
}

// Scrub evaluates claim against the active rules in effect on asOf.
// A zero asOf means the claim's date of service, or now when that is unset.
func (e *Engine) Scrub(claim *types.Claim, asOf time.Time) ScrubReport {
	return e.scrub(e.Snapshot(), claim, asOf)
}

func (e *Engine) scrub(rs *RuleSet, claim *types.Claim, asOf time.Time) ScrubReport {
	if asOf.IsZero() {
		asOf = claim.DateOfService
	}
	if asOf.IsZero() {
		asOf = e.now()
	}

	report := ScrubReport{
		ScrubID:     types.NewScrubID(),
		ClaimID:     claim.ClaimID,
		AsOf:        dayOf(asOf),
		EvaluatedAt: e.now().UTC(),
		RuleSetETag: rs.ETag,
		Results:     []RuleResult{},
	}

	for _, rule := range SelectCandidates(claim, rs.Rules, asOf) {
		res := RuleResult{RuleID: rule.RuleID, RuleName: rule.Name, Priority: rule.Priority}

		if report.Denied && e.stopOnDeny {
			res.Skipped = true
			report.Results = append(report.Results, res)
			continue
		}

		match, err := Evaluate(rule, claim)
		if err == nil && match.Matched {
			res.Matched = true
			res.Outcomes, err = Apply(rule, claim)
		}
		if err != nil {
			res.Err, res.Error = err, err.Error()
			res.Outcomes = nil
			e.logger.Warn("rule evaluation failed", "rule_id", rule.RuleID, "claim_id", claim.ClaimID, "error", err)
		}

		for _, o := range res.Outcomes {
			if o.Terminal && !report.Denied {
				report.Denied = true
				report.DeniedBy = rule.RuleID
			}
		}
		report.Results = append(report.Results, res)
	}

	return report
}

// ScrubBatch scrubs claims concurrently against one snapshot.
// Returns reports in input order; only ctx cancellation is an error.
func (e *Engine) ScrubBatch(ctx context.Context, claims []types.Claim, asOf time.Time) ([]ScrubReport, error) {
	rs := e.Snapshot()
	reports := make([]ScrubReport, len(claims))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range claims {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i] = e.scrub(rs, &claims[i], asOf)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// DetectConflicts runs the conflict detector over the current snapshot.
func (e *Engine) DetectConflicts(ctx context.Context) ConflictReport {
	report := DetectConflicts(ctx, e.Snapshot().Rules, e.detector)
	if report.Truncated {
		e.logger.Warn("conflict detection truncated", "compared", report.PairsCompared, "total", report.PairsTotal)
	}
	return report
}

// RunTest runs the harness over the current snapshot.
func (e *Engine) RunTest(ctx context.Context, ruleIDs []types.RuleID, samples []types.SampleClaim) ([]types.TestResult, error) {
	return RunTest(ctx, e.Snapshot().Rules, ruleIDs, samples, e.harness)
}

// ComputeETag hashes rule ids with their version and modification time.
// Order-independent.
func ComputeETag(rules []types.Rule) string {
	keys := make([]string, 0, len(rules))
	for _, r := range rules {
		keys = append(keys, string(r.ID)+":"+strconv.Itoa(r.Version)+":"+string(r.Status)+":"+
			strconv.FormatInt(r.ModifiedAt.UnixNano(), 10))
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
