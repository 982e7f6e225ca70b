// internal/rules/coercion.go
package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/claimscrub/internal/types"
)

/*
 * Type coercion for condition values.
 *
 * Claim fields fall into three kinds: TEXT (codes and identifiers), NUMERIC
 * (units, age) and DATE (date of service). Condition values arrive from JSON,
 * YAML or Go callers in whatever shape the author wrote them, so they are
 * coerced once at compile time into the field's kind.
 *
 * Kind modes:
 *   - TEXT: Lenient - numbers and booleans become strings (YAML reads an
 *     unquoted 99213 as an int, a code is still a code)
 *   - NUMERIC: Strict - numeric strings parse, booleans and dates reject
 *   - DATE: Strict - time.Time or "2006-01-02"/RFC3339 strings
 *
 * Coercion failure of a condition value is a type mismatch between the value
 * and the field, reported as types.ErrTypeMismatch.
 */

// FieldKind is the value type of a claim field.
type FieldKind int

const (
	KindUnspecified FieldKind = iota
	KindText
	KindNumeric
	KindDate
)

func (k FieldKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumeric:
		return "numeric"
	case KindDate:
		return "date"
	default:
		return "unspecified"
	}
}

// dateLayouts are tried in order when coercing strings to dates.
var dateLayouts = []string{"2006-01-02", time.RFC3339, "01/02/2006"}

// Coerce converts value to the representation used for kind:
// string for TEXT, float64 for NUMERIC, day-truncated time.Time for DATE.
func Coerce(value any, kind FieldKind) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("%w: nil value for %s field", types.ErrTypeMismatch, kind)
	}

	switch kind {
	case KindText:
		return coerceText(value)
	case KindNumeric:
		return coerceNumeric(value)
	case KindDate:
		return coerceDate(value)
	default:
		return nil, fmt.Errorf("%w: unknown field kind", types.ErrUnsupportedOperator)
	}
}

// coerceNumeric converts value to float64.
// Whitespace-only and non-numeric strings are mismatches.
func coerceNumeric(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, fmt.Errorf("%w: empty string is not numeric", types.ErrTypeMismatch)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not numeric", types.ErrTypeMismatch, v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %T is not numeric", types.ErrTypeMismatch, value)
	}
}

// coerceText converts scalars to their string form.
func coerceText(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.Format("2006-01-02"), nil
	case []any, map[string]any:
		return nil, fmt.Errorf("%w: %T is not a text scalar", types.ErrTypeMismatch, value)
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// coerceDate converts value to a UTC date at midnight.
func coerceDate(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return dayOf(v), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return dayOf(t), nil
			}
		}
		return nil, fmt.Errorf("%w: %q is not a date", types.ErrTypeMismatch, v)
	default:
		return nil, fmt.Errorf("%w: %T is not a date", types.ErrTypeMismatch, value)
	}
}

// dayOf truncates t to its calendar day in UTC.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// coerceList normalizes list-shaped condition values. Scalars become a
// one-element list so "in: 25" behaves like "in: [25]".
func coerceList(value any, kind FieldKind) ([]any, error) {
	var raw []any
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("%w: list value required", types.ErrTypeMismatch)
	case []any:
		raw = v
	case []string:
		raw = make([]any, len(v))
		for i, s := range v {
			raw[i] = s
		}
	case []int:
		raw = make([]any, len(v))
		for i, n := range v {
			raw[i] = n
		}
	case []float64:
		raw = make([]any, len(v))
		for i, n := range v {
			raw[i] = n
		}
	default:
		raw = []any{v}
	}

	if len(raw) > types.MaxInOperatorValues {
		return nil, types.ErrTooManyInValues
	}

	out := make([]any, 0, len(raw))
	for _, elem := range raw {
		c, err := Coerce(elem, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// coerceRange normalizes a between value. Accepts types.Range, a
// {min,max} map, or a two-element list. Returns ErrInvalidRange when
// bounds are missing or min > max.
func coerceRange(value any, kind FieldKind) (lo, hi any, err error) {
	var rawMin, rawMax any
	switch v := value.(type) {
	case types.Range:
		rawMin, rawMax = v.Min, v.Max
	case *types.Range:
		if v == nil {
			return nil, nil, fmt.Errorf("%w: missing bounds", types.ErrInvalidRange)
		}
		rawMin, rawMax = v.Min, v.Max
	case map[string]any:
		rawMin, rawMax = v["min"], v["max"]
	case []any:
		if len(v) != 2 {
			return nil, nil, fmt.Errorf("%w: expected [min, max]", types.ErrInvalidRange)
		}
		rawMin, rawMax = v[0], v[1]
	default:
		return nil, nil, fmt.Errorf("%w: %T is not a range", types.ErrInvalidRange, value)
	}
	if rawMin == nil || rawMax == nil {
		return nil, nil, fmt.Errorf("%w: missing bounds", types.ErrInvalidRange)
	}

	if lo, err = Coerce(rawMin, kind); err != nil {
		return nil, nil, err
	}
	if hi, err = Coerce(rawMax, kind); err != nil {
		return nil, nil, err
	}
	if compareOrdered(lo, hi) > 0 {
		return nil, nil, fmt.Errorf("%w: min %v greater than max %v", types.ErrInvalidRange, rawMin, rawMax)
	}
	return lo, hi, nil
}
