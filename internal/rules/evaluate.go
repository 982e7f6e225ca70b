// internal/rules/evaluate.go
package rules

import (
	"github.com/solatis/claimscrub/internal/types"
)

/*
 * Rule evaluation orchestration.
 *
 * Evaluates a CompiledRule's ordered condition list against a claim.
 *
 * Evaluation flow:
 *   1. Per-condition: resolve claim field -> compare operator
 *   2. Fold results strictly left to right using each condition's
 *      logicalOperator: result = result AND/OR eval(c_i)
 *   3. Skip evaluating c_i when the step outcome is already fixed
 *      (false AND x, true OR x); later steps still run
 *
 * Fold semantics: there is no operator precedence and no grouping.
 * [A, B(OR), C(AND)] computes ((A or B) and C), never (A or (B and C)).
 * Rule authors build rules around this reading; do not "fix" it.
 *
 * Empty condition list: never matches. Only draft rules may have one.
 */

// MatchResult contains the outcome of rule evaluation.
type MatchResult struct {
	RuleID    types.RuleID
	RuleName  string
	Matched   bool
	Evaluated int // conditions actually evaluated
}

// EvaluateCondition evaluates a single condition against a claim.
func EvaluateCondition(cond types.Condition, claim *types.Claim) (bool, error) {
	cc, err := CompileCondition(cond)
	if err != nil {
		return false, err
	}
	return evaluateCondition(&cc, claim)
}

// Combine folds conditions left to right against claim.
// A malformed chain is rejected with ErrRuleValidation before any
// condition is evaluated.
func Combine(conds []types.Condition, claim *types.Claim) (bool, error) {
	compiled := make([]CompiledCondition, 0, len(conds))
	for i, c := range conds {
		if err := checkLogical(i, c.LogicalOperator); err != nil {
			return false, &ValidationError{Problems: []error{err}}
		}
		cc, err := CompileCondition(c)
		if err != nil {
			return false, err
		}
		compiled = append(compiled, cc)
	}
	matched, _, err := fold(compiled, claim)
	return matched, err
}

// Evaluate checks whether the rule's conditions match the claim.
func Evaluate(rule *CompiledRule, claim *types.Claim) (MatchResult, error) {
	result := MatchResult{
		RuleID:   rule.RuleID,
		RuleName: rule.Name,
	}

	matched, evaluated, err := fold(rule.Conditions, claim)
	result.Evaluated = evaluated
	if err != nil {
		return result, &types.EvaluationError{RuleID: rule.RuleID, ClaimID: claimID(claim), Err: err}
	}
	result.Matched = matched
	return result, nil
}

// fold applies the left-to-right AND/OR chain.
// Returns the verdict and the number of conditions evaluated.
func fold(conds []CompiledCondition, claim *types.Claim) (bool, int, error) {
	if len(conds) == 0 {
		return false, 0, nil
	}

	result, err := evaluateCondition(&conds[0], claim)
	if err != nil {
		return false, 1, err
	}
	evaluated := 1

	for i := 1; i < len(conds); i++ {
		cond := &conds[i]
		switch cond.Logical {
		case types.LogicalOr:
			if result {
				continue
			}
		default:
			if !result {
				continue
			}
		}

		next, err := evaluateCondition(cond, claim)
		evaluated++
		if err != nil {
			return false, evaluated, err
		}
		result = next
	}

	return result, evaluated, nil
}

// evaluateCondition orchestrates: resolve field -> compare operator.
func evaluateCondition(cond *CompiledCondition, claim *types.Claim) (bool, error) {
	resolved, err := Resolve(cond.Field, claim)
	if err != nil {
		return false, err
	}
	return Compare(cond, resolved)
}

func claimID(claim *types.Claim) string {
	if claim == nil {
		return ""
	}
	return claim.ClaimID
}
