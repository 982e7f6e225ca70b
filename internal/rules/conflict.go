// internal/rules/conflict.go
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/solatis/claimscrub/internal/types"
)

/*
 * Static conflict detection.
 *
 * Compares every unordered pair of active/testing rules and reports pairs
 * that can match the same claim while their actions contradict, repeat each
 * other, or depend on an ambiguous application order.
 *
 * Pair screening:
 *   1. Scope overlap: one rule global, or same scope and scopeId
 *   2. Effective windows intersect
 *   3. Shared evidence: some field constrained by both rules with
 *      overlapping values (equal codes, intersecting ranges, identical
 *      negative constraints)
 *   4. No provable contradiction between AND-only condition lists
 *      (disjoint values on a single-valued field, a required code the other
 *      rule forbids, exists vs not_exists)
 *
 * Classification (first wins):
 *   - contradiction: opposing modifier requirements, bundle vs unbundle of a
 *     shared code, different unit caps for one code, adjustments of
 *     opposite sign
 *   - overlap: an action of the same type with identical parameters
 *   - precedence: compatible actions at equal priority
 *
 * Satisfiability of arbitrary condition lists is not decidable in general;
 * this is a heuristic. Results are advisory and never block a rule.
 *
 * Budget: each pair costs the sum of both rule costs. When the budget or the
 * context deadline runs out, the report is returned as-is with Truncated
 * set and ErrConflictDetectionTimeout attached.
 */

// DetectorOptions bounds a detection run.
type DetectorOptions struct {
	Budget int              // cost units; 0 = unlimited
	Now    func() time.Time // detectedAt clock; defaults to time.Now
}

// ConflictReport is the output of one detection run.
type ConflictReport struct {
	Conflicts       []types.Conflict `json:"conflicts"`
	RulesConsidered int              `json:"rulesConsidered"`
	PairsTotal      int              `json:"pairsTotal"`
	PairsCompared   int              `json:"pairsCompared"`
	CostSpent       int              `json:"costSpent"`
	Truncated       bool             `json:"truncated"`
	Error           string           `json:"error,omitempty"`
	Err             error            `json:"-"`
}

// DetectConflicts analyzes rules pairwise.
func DetectConflicts(ctx context.Context, rules []*CompiledRule, opts DetectorOptions) ConflictReport {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	detectedAt := now().UTC()

	candidates := conflictCandidates(rules)
	summaries := make([]summary, len(candidates))
	for i, r := range candidates {
		summaries[i] = summarize(r)
	}

	n := len(candidates)
	report := ConflictReport{
		Conflicts:       []types.Conflict{},
		RulesConsidered: n,
		PairsTotal:      n * (n - 1) / 2,
	}

pairs:
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := candidates[i], candidates[j]

			if err := ctx.Err(); err != nil {
				report.truncate(fmt.Errorf("%w: %v", types.ErrConflictDetectionTimeout, err))
				break pairs
			}
			cost := a.Cost + b.Cost
			if opts.Budget > 0 && report.CostSpent+cost > opts.Budget {
				report.truncate(fmt.Errorf("%w: budget %d exhausted", types.ErrConflictDetectionTimeout, opts.Budget))
				break pairs
			}
			report.CostSpent += cost
			report.PairsCompared++

			if c, ok := comparePair(a, b, &summaries[i], &summaries[j]); ok {
				c.DetectedAt = detectedAt
				report.Conflicts = append(report.Conflicts, c)
			}
		}
	}

	sort.SliceStable(report.Conflicts, func(i, j int) bool {
		ci, cj := report.Conflicts[i], report.Conflicts[j]
		if ci.Score != cj.Score {
			return ci.Score > cj.Score
		}
		if ci.Rule1 != cj.Rule1 {
			return ci.Rule1 < cj.Rule1
		}
		return ci.Rule2 < cj.Rule2
	})

	return report
}

func (r *ConflictReport) truncate(err error) {
	r.Truncated = true
	r.Err = err
	r.Error = fmt.Sprintf("partial report: compared %d of %d rule pairs: %v", r.PairsCompared, r.PairsTotal, err)
}

// conflictCandidates keeps active/testing rules, one per id, sorted by id so
// every pair is visited once with rule1 < rule2.
func conflictCandidates(rules []*CompiledRule) []*CompiledRule {
	seen := make(map[types.RuleID]struct{}, len(rules))
	out := make([]*CompiledRule, 0, len(rules))
	for _, r := range rules {
		if r == nil || (r.Status != types.StatusActive && r.Status != types.StatusTesting) {
			continue
		}
		if _, dup := seen[r.RuleID]; dup {
			continue
		}
		seen[r.RuleID] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

// comparePair screens and classifies one pair.
func comparePair(a, b *CompiledRule, sa, sb *summary) (types.Conflict, bool) {
	if !scopesOverlap(a, b) || !windowsOverlap(a, b) {
		return types.Conflict{}, false
	}
	if !sharedEvidence(sa, sb) || provablyDisjoint(sa, sb) {
		return types.Conflict{}, false
	}

	kind, detail, ok := classifyActions(a, b)
	if !ok {
		return types.Conflict{}, false
	}

	r1, r2 := types.NormalizePair(a.RuleID, b.RuleID)
	severity, score := conflictSeverity(kind, a, b)
	return types.Conflict{
		ID:             types.ConflictIDFor(r1, r2),
		Rule1:          r1,
		Rule2:          r2,
		Type:           kind,
		Severity:       severity,
		Score:          score,
		Description:    describe(kind, a, b, detail),
		Recommendation: recommend(kind),
	}, true
}

func scopesOverlap(a, b *CompiledRule) bool {
	if a.Scope == types.ScopeGlobal || b.Scope == types.ScopeGlobal {
		return true
	}
	return a.Scope == b.Scope && strings.EqualFold(a.ScopeID, b.ScopeID)
}

func windowsOverlap(a, b *CompiledRule) bool {
	if a.ExpirationDate != nil && dayOf(*a.ExpirationDate).Before(dayOf(b.EffectiveDate)) {
		return false
	}
	if b.ExpirationDate != nil && dayOf(*b.ExpirationDate).Before(dayOf(a.EffectiveDate)) {
		return false
	}
	return true
}

// constraintClass groups operators by how they restrict a field.
type constraintClass int

const (
	classPositive constraintClass = iota // equals, in
	classNegative                        // not_equals, not_in
	classInterval                        // greater_than, less_than, between
	classPattern                         // contains, starts_with, ends_with
	classExists
	classNotExists
)

// constraint is one condition viewed as a restriction on a field's values.
type constraint struct {
	class    constraintClass
	op       types.Operator
	kind     FieldKind
	values   []any
	pattern  any
	interval interval
}

// interval is an ordered range; nil bounds are unbounded.
type interval struct {
	lo, hi         any
	loOpen, hiOpen bool
}

// summary indexes a rule's conditions by field.
type summary struct {
	andOnly bool
	fields  map[types.Field][]constraint
}

func summarize(rule *CompiledRule) summary {
	s := summary{andOnly: true, fields: make(map[types.Field][]constraint)}
	for i := range rule.Conditions {
		c := &rule.Conditions[i]
		if i > 0 && c.Logical == types.LogicalOr {
			s.andOnly = false
		}
		s.fields[c.Field] = append(s.fields[c.Field], toConstraint(c))
	}
	return s
}

func toConstraint(c *CompiledCondition) constraint {
	con := constraint{op: c.Operator, kind: c.Kind}
	switch c.Operator {
	case types.OpEquals:
		con.class, con.values = classPositive, []any{c.Value}
	case types.OpIn:
		con.class, con.values = classPositive, c.Values
	case types.OpNotEquals:
		con.class, con.values = classNegative, []any{c.Value}
	case types.OpNotIn:
		con.class, con.values = classNegative, c.Values
	case types.OpGreaterThan:
		con.class, con.interval = classInterval, interval{lo: c.Value, loOpen: true}
	case types.OpLessThan:
		con.class, con.interval = classInterval, interval{hi: c.Value, hiOpen: true}
	case types.OpBetween:
		con.class, con.interval = classInterval, interval{lo: c.Min, hi: c.Max}
	case types.OpContains, types.OpStartsWith, types.OpEndsWith:
		con.class, con.pattern = classPattern, c.Value
	case types.OpExists:
		con.class = classExists
	default:
		con.class = classNotExists
	}
	return con
}

// sharedEvidence reports whether both rules constrain some field in a way
// that admits a common value.
func sharedEvidence(sa, sb *summary) bool {
	for field, as := range sa.fields {
		bs, ok := sb.fields[field]
		if !ok {
			continue
		}
		for _, ca := range as {
			for _, cb := range bs {
				if constraintsOverlap(ca, cb) {
					return true
				}
			}
		}
	}
	return false
}

func constraintsOverlap(a, b constraint) bool {
	if b.class < a.class {
		a, b = b, a
	}
	switch {
	case a.class == classPositive && b.class == classPositive:
		return anyOf(a.values, func(v any) bool { return compareIn(v, b.values) })
	case a.class == classPositive && b.class == classInterval:
		return anyOf(a.values, b.interval.contains)
	case a.class == classPositive && b.class == classPattern:
		return anyOf(a.values, func(v any) bool { return patternMatches(b, v) })
	case a.class == classPositive && b.class == classExists:
		return true
	case a.class == classNegative && b.class == classNegative:
		return sameValues(a.values, b.values)
	case a.class == classInterval && b.class == classInterval:
		_, ok := a.interval.intersect(b.interval)
		return ok
	case a.class == classInterval && b.class == classExists:
		return true
	case a.class == classPattern && b.class == classPattern:
		return a.op == b.op && compareEqual(a.pattern, b.pattern)
	case a.class == classPattern && b.class == classExists:
		return true
	case a.class == classExists && b.class == classExists:
		return true
	case a.class == classNotExists && b.class == classNotExists:
		return true
	}
	return false
}

// provablyDisjoint reports whether two AND-only rules cannot match the same
// claim. Rules containing OR are never provably disjoint.
func provablyDisjoint(sa, sb *summary) bool {
	if !sa.andOnly || !sb.andOnly {
		return false
	}
	for field, as := range sa.fields {
		bs, ok := sb.fields[field]
		if !ok {
			continue
		}
		if presenceConflict(as, bs) || presenceConflict(bs, as) {
			return true
		}
		if IsMultiValued(field) {
			if forbidsRequired(as, bs) || forbidsRequired(bs, as) {
				return true
			}
			continue
		}
		if singleValueImpossible(append(append([]constraint{}, as...), bs...)) {
			return true
		}
	}
	return false
}

// presenceConflict: one side requires the field, the other forbids it.
func presenceConflict(as, bs []constraint) bool {
	requires := false
	for _, c := range as {
		switch c.class {
		case classPositive, classInterval, classPattern, classExists:
			requires = true
		}
	}
	if !requires {
		return false
	}
	for _, c := range bs {
		if c.class == classNotExists {
			return true
		}
	}
	return false
}

// forbidsRequired: some positive constraint in as only allows values that
// a negative constraint in bs excludes.
func forbidsRequired(as, bs []constraint) bool {
	var excluded []any
	for _, c := range bs {
		if c.class == classNegative {
			excluded = append(excluded, c.values...)
		}
	}
	if len(excluded) == 0 {
		return false
	}
	for _, c := range as {
		if c.class != classPositive {
			continue
		}
		if !anyOf(c.values, func(v any) bool { return !compareIn(v, excluded) }) {
			return true
		}
	}
	return false
}

// singleValueImpossible: no single value satisfies every constraint.
func singleValueImpossible(all []constraint) bool {
	var allowed []any
	havePositive := false
	bounds := interval{}
	for _, c := range all {
		switch c.class {
		case classPositive:
			if !havePositive {
				allowed = append([]any{}, c.values...)
				havePositive = true
				continue
			}
			allowed = filter(allowed, func(v any) bool { return compareIn(v, c.values) })
		case classInterval:
			next, ok := bounds.intersect(c.interval)
			if !ok {
				return true
			}
			bounds = next
		}
	}
	if !havePositive {
		return false
	}

	for _, c := range all {
		switch c.class {
		case classNegative:
			allowed = filter(allowed, func(v any) bool { return !compareIn(v, c.values) })
		case classPattern:
			allowed = filter(allowed, func(v any) bool { return patternMatches(c, v) })
		}
	}
	allowed = filter(allowed, bounds.contains)
	return len(allowed) == 0
}

func (iv interval) contains(v any) bool {
	if iv.lo != nil {
		c := compareOrdered(v, iv.lo)
		if c < 0 || (c == 0 && iv.loOpen) {
			return false
		}
	}
	if iv.hi != nil {
		c := compareOrdered(v, iv.hi)
		if c > 0 || (c == 0 && iv.hiOpen) {
			return false
		}
	}
	return true
}

// intersect returns the intersection and whether it is non-empty.
func (iv interval) intersect(other interval) (interval, bool) {
	out := iv
	if other.lo != nil {
		if out.lo == nil {
			out.lo, out.loOpen = other.lo, other.loOpen
		} else if c := compareOrdered(other.lo, out.lo); c > 0 || (c == 0 && other.loOpen) {
			out.lo, out.loOpen = other.lo, other.loOpen
		}
	}
	if other.hi != nil {
		if out.hi == nil {
			out.hi, out.hiOpen = other.hi, other.hiOpen
		} else if c := compareOrdered(other.hi, out.hi); c < 0 || (c == 0 && other.hiOpen) {
			out.hi, out.hiOpen = other.hi, other.hiOpen
		}
	}
	if out.lo != nil && out.hi != nil {
		c := compareOrdered(out.lo, out.hi)
		if c > 0 || (c == 0 && (out.loOpen || out.hiOpen)) {
			return out, false
		}
	}
	return out, true
}

func patternMatches(c constraint, v any) bool {
	switch c.op {
	case types.OpContains:
		return compareText(v, c.pattern, strings.Contains)
	case types.OpStartsWith:
		return compareText(v, c.pattern, strings.HasPrefix)
	default:
		return compareText(v, c.pattern, strings.HasSuffix)
	}
}

func sameValues(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if !compareIn(v, b) {
			return false
		}
	}
	return true
}

func anyOf(values []any, pred func(any) bool) bool {
	for _, v := range values {
		if pred(v) {
			return true
		}
	}
	return false
}

func filter(values []any, keep func(any) bool) []any {
	out := values[:0:0]
	for _, v := range values {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// classifyActions compares the two action lists.
func classifyActions(a, b *CompiledRule) (types.ConflictType, string, bool) {
	for _, x := range a.Actions {
		for _, y := range b.Actions {
			if detail, ok := opposes(x.Params, y.Params); ok {
				return types.ConflictContradiction, detail, true
			}
		}
	}
	for _, x := range a.Actions {
		for _, y := range b.Actions {
			if x.Type == y.Type && x.Params != nil && y.Params != nil && x.Params.Key() == y.Params.Key() {
				return types.ConflictOverlap, fmt.Sprintf("both apply %s (%s)", x.Type, x.Params.Key()), true
			}
		}
	}
	if a.Priority == b.Priority && len(a.Actions) > 0 && len(b.Actions) > 0 {
		return types.ConflictPrecedence, fmt.Sprintf("both have priority %d", a.Priority), true
	}
	return "", "", false
}

// opposes reports whether two actions ask for incompatible claim changes.
func opposes(x, y ActionParams) (string, bool) {
	switch px := x.(type) {
	case RequireModifierParams:
		py, ok := y.(RequireModifierParams)
		if ok && strings.EqualFold(px.Modifier, py.Modifier) && px.Prohibited != py.Prohibited {
			return fmt.Sprintf("one requires modifier %s while the other prohibits it", px.Modifier), true
		}
	case BundleCodesParams:
		if py, ok := y.(UnbundleCodesParams); ok {
			return bundleVersusUnbundle(px, py)
		}
	case UnbundleCodesParams:
		if py, ok := y.(BundleCodesParams); ok {
			return bundleVersusUnbundle(py, px)
		}
	case LimitUnitsParams:
		py, ok := y.(LimitUnitsParams)
		if ok && strings.EqualFold(px.Code, py.Code) && px.MaxUnits != py.MaxUnits {
			return fmt.Sprintf("unit limits differ for %q: %d vs %d", px.Code, px.MaxUnits, py.MaxUnits), true
		}
	case AdjustAmountParams:
		py, ok := y.(AdjustAmountParams)
		if ok && px.Delta.Sign() != py.Delta.Sign() {
			return fmt.Sprintf("amount adjustments have opposite signs: %s vs %s", px.Delta, py.Delta), true
		}
	}
	return "", false
}

func bundleVersusUnbundle(b BundleCodesParams, u UnbundleCodesParams) (string, bool) {
	bundled := append([]string{b.Primary}, b.Codes...)
	for _, code := range u.Codes {
		for _, bc := range bundled {
			if strings.EqualFold(code, bc) {
				return fmt.Sprintf("code %s is bundled by one rule and unbundled by the other", code), true
			}
		}
	}
	return "", false
}

// conflictSeverity escalates with the strongest action severity, the
// conflict type and the widest scope involved. Severity has four steps, so
// only global scope moves it; payer, plan and specialty share a band and
// are ordered by Score. Score orders conflicts with the same severity:
// type first, then action severity, then scope breadth.
func conflictSeverity(kind types.ConflictType, a, b *CompiledRule) (types.Severity, int) {
	maxRank := 0
	for _, rule := range []*CompiledRule{a, b} {
		for _, act := range rule.Actions {
			if r := act.Severity.Rank(); r > maxRank {
				maxRank = r
			}
		}
	}

	typeAdj, typeWeight := 0, 1
	switch kind {
	case types.ConflictContradiction:
		typeAdj, typeWeight = 1, 2
	case types.ConflictPrecedence:
		typeAdj, typeWeight = -1, 0
	}

	breadth := a.Scope.Breadth()
	if bb := b.Scope.Breadth(); bb > breadth {
		breadth = bb
	}
	scopeAdj := 0
	if breadth == types.ScopeGlobal.Breadth() {
		scopeAdj = 1
	}

	severity := types.SeverityFromRank(maxRank + typeAdj + scopeAdj)
	score := typeWeight*100 + maxRank*10 + breadth
	return severity, score
}

func describe(kind types.ConflictType, a, b *CompiledRule, detail string) string {
	switch kind {
	case types.ConflictContradiction:
		return fmt.Sprintf("Rules %s and %s can match the same claims but contradict: %s.", a.RuleID, b.RuleID, detail)
	case types.ConflictOverlap:
		return fmt.Sprintf("Rules %s and %s match overlapping claims and %s.", a.RuleID, b.RuleID, detail)
	default:
		return fmt.Sprintf("Rules %s and %s match overlapping claims and %s; application order falls back to effective date and id.", a.RuleID, b.RuleID, detail)
	}
}

func recommend(kind types.ConflictType) string {
	switch kind {
	case types.ConflictContradiction:
		return "Archive or narrow one of the rules so their conditions cannot match the same claim."
	case types.ConflictOverlap:
		return "Consolidate the rules or archive the redundant one."
	default:
		return "Assign distinct priorities to make the intended order explicit."
	}
}
