// internal/rules/cost.go
package rules

import "github.com/solatis/claimscrub/internal/types"

/*
 * Cost model for condition evaluation.
 *
 * Conditions cannot be reordered (the combinator folds strictly left to
 * right), so cost is not used for short-circuit ordering. It measures work:
 * the conflict detector charges each rule pair the cost of both rules
 * against its budget, and the engine reports a rule set's total cost.
 *
 * Cost formula: lookup_cost + operator_cost * kind_multiplier + list_cost
 *
 * Multi-valued fields pay a fanout lookup since every code is compared.
 * in/not_in pay per list element.
 */

// Canonical cost constants.
const (
	// Operator base costs
	CostExists   = 1
	CostEquals   = 5
	CostOrdered  = 7
	CostIn       = 8
	CostContains = 10

	// Field lookup cost
	CostLookupSingle = 1
	CostLookupMulti  = 4

	// Per element of an in/not_in list
	CostPerListValue = 1

	// Field kind multipliers
	MultiplierNumeric = 1
	MultiplierDate    = 2
	MultiplierText    = 4

	// Per action dispatched
	CostPerAction = 2
)

// CalculateConditionCost computes cost for a single condition.
func CalculateConditionCost(field types.Field, op types.Operator, kind FieldKind, listLen int) int {
	lookup := CostLookupSingle
	if IsMultiValued(field) {
		lookup = CostLookupMulti
	}
	return lookup + operatorCost(op)*kindMultiplier(kind) + listLen*CostPerListValue
}

// CalculateRuleCost sums condition costs plus action dispatch.
func CalculateRuleCost(conds []CompiledCondition, actions int) int {
	total := 0
	for _, c := range conds {
		total += c.Cost
	}
	return total + actions*CostPerAction
}

// operatorCost returns base cost for operator execution.
func operatorCost(op types.Operator) int {
	switch op {
	case types.OpExists, types.OpNotExists:
		return CostExists
	case types.OpEquals, types.OpNotEquals:
		return CostEquals
	case types.OpGreaterThan, types.OpLessThan, types.OpBetween:
		return CostOrdered
	case types.OpIn, types.OpNotIn:
		return CostIn
	case types.OpContains, types.OpStartsWith, types.OpEndsWith:
		return CostContains
	default:
		return CostEquals
	}
}

// kindMultiplier returns cost multiplier based on comparison complexity.
func kindMultiplier(kind FieldKind) int {
	switch kind {
	case KindNumeric:
		return MultiplierNumeric
	case KindDate:
		return MultiplierDate
	default:
		return MultiplierText
	}
}
