// internal/rules/operators.go
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/solatis/claimscrub/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Implements 12 condition operators with kind-aware comparison rules.
 * Claim values come from Resolve; targets are coerced at compile time.
 *
 * Operators:
 *   - exists/not_exists: Presence checks, valid on every kind (cost 1)
 *   - equals/not_equals: Equality, case-insensitive for text (cost 5)
 *   - greater_than/less_than/between: Ordered kinds only (cost 7)
 *   - in/not_in: Membership with equality semantics (cost 8)
 *   - contains/starts_with/ends_with: Text only, case-insensitive (cost 10)
 *
 * Multi-valued fields: positive operators match when ANY value satisfies the
 * operator. not_equals and not_in are the negation of equals and in over the
 * whole field, so "modifier not_in [25]" means no modifier is 25.
 *
 * Missing fields: positive operators are false, negated operators true.
 */

// CheckOperator reports whether op is applicable to kind.
// Returns ErrUnsupportedOperator for unknown operators and ErrTypeMismatch
// for known operators on incompatible kinds.
func CheckOperator(op types.Operator, kind FieldKind) error {
	switch op {
	case types.OpExists, types.OpNotExists,
		types.OpEquals, types.OpNotEquals, types.OpIn, types.OpNotIn:
		return nil
	case types.OpContains, types.OpStartsWith, types.OpEndsWith:
		if kind != KindText {
			return fmt.Errorf("%w: %s requires a text field, got %s", types.ErrTypeMismatch, op, kind)
		}
		return nil
	case types.OpGreaterThan, types.OpLessThan, types.OpBetween:
		if kind != KindNumeric && kind != KindDate {
			return fmt.Errorf("%w: %s requires a numeric or date field, got %s", types.ErrTypeMismatch, op, kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown operator %q", types.ErrUnsupportedOperator, op)
	}
}

// Compare applies a compiled condition's operator to the resolved values.
func Compare(cond *CompiledCondition, resolved ResolveResult) (bool, error) {
	if err := CheckOperator(cond.Operator, cond.Kind); err != nil {
		return false, err
	}

	switch cond.Operator {
	case types.OpExists:
		return resolved.Found, nil
	case types.OpNotExists:
		return !resolved.Found, nil
	case types.OpNotEquals:
		return !anyValue(resolved, func(v any) bool { return compareEqual(v, cond.Value) }), nil
	case types.OpNotIn:
		return !anyValue(resolved, func(v any) bool { return compareIn(v, cond.Values) }), nil
	}

	if !resolved.Found {
		return false, nil
	}

	switch cond.Operator {
	case types.OpEquals:
		return anyValue(resolved, func(v any) bool { return compareEqual(v, cond.Value) }), nil
	case types.OpIn:
		return anyValue(resolved, func(v any) bool { return compareIn(v, cond.Values) }), nil
	case types.OpContains:
		return anyValue(resolved, func(v any) bool { return compareText(v, cond.Value, strings.Contains) }), nil
	case types.OpStartsWith:
		return anyValue(resolved, func(v any) bool { return compareText(v, cond.Value, strings.HasPrefix) }), nil
	case types.OpEndsWith:
		return anyValue(resolved, func(v any) bool { return compareText(v, cond.Value, strings.HasSuffix) }), nil
	case types.OpGreaterThan:
		return anyValue(resolved, func(v any) bool { return compareOrdered(v, cond.Value) > 0 }), nil
	case types.OpLessThan:
		return anyValue(resolved, func(v any) bool { return compareOrdered(v, cond.Value) < 0 }), nil
	case types.OpBetween:
		if compareOrdered(cond.Min, cond.Max) > 0 {
			return false, fmt.Errorf("%w: min %v greater than max %v", types.ErrInvalidRange, cond.Min, cond.Max)
		}
		return anyValue(resolved, func(v any) bool {
			return compareOrdered(v, cond.Min) >= 0 && compareOrdered(v, cond.Max) <= 0
		}), nil
	}
	return false, fmt.Errorf("%w: unknown operator %q", types.ErrUnsupportedOperator, cond.Operator)
}

// anyValue reports whether pred holds for some resolved value.
func anyValue(resolved ResolveResult, pred func(any) bool) bool {
	for _, v := range resolved.Values {
		if pred(v) {
			return true
		}
	}
	return false
}

// compareEqual performs kind-aware equality. Text compares case-insensitively.
func compareEqual(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && strings.EqualFold(av, bv)
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return a == b
	}
}

// compareOrdered performs three-way comparison (-1/0/1) on numbers or dates.
// Returns 0 for incomparable types.
func compareOrdered(a, b any) int {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0
		}
		return av.Compare(bv)
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0
		}
		return strings.Compare(strings.ToUpper(av), strings.ToUpper(bv))
	default:
		return 0
	}
}

// compareText applies a strings predicate case-insensitively.
// Returns false for non-string values.
func compareText(value, target any, pred func(s, sub string) bool) bool {
	vs, ok1 := value.(string)
	ts, ok2 := target.(string)
	if !ok1 || !ok2 {
		return false
	}
	return pred(strings.ToUpper(vs), strings.ToUpper(ts))
}

// compareIn checks if value exists in set using equality semantics.
func compareIn(value any, set []any) bool {
	for _, elem := range set {
		if compareEqual(value, elem) {
			return true
		}
	}
	return false
}
