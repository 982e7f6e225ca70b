// internal/rules/fields.go
package rules

import (
	"fmt"

	"github.com/solatis/claimscrub/internal/types"
)

/*
 * Claim field resolution.
 *
 * Resolves a condition field name to the claim's values for that field.
 * Code lists (diagnosis, procedure, modifier) are multi-valued; every other
 * field resolves to at most one value. Operators apply ANY semantics over
 * multi-valued fields: a condition matches when some element satisfies it.
 *
 * Values come back already in the field's kind representation (string,
 * float64, UTC date) so Compare never coerces claim data.
 *
 * Absence: empty strings, empty code lists, nil units/age and a zero date of
 * service all resolve to Found=false. exists/not_exists test only this flag.
 */

// ResolveResult contains a claim field's values.
type ResolveResult struct {
	Values []any // resolved values (empty if not found)
	Found  bool  // true if the claim carries the field
}

// fieldSpec describes a claim field.
type fieldSpec struct {
	kind  FieldKind
	multi bool
}

var fieldSpecs = map[types.Field]fieldSpec{
	types.FieldDiagnosis: {kind: KindText, multi: true},
	types.FieldProcedure: {kind: KindText, multi: true},
	types.FieldModifier:  {kind: KindText, multi: true},
	types.FieldPOS:       {kind: KindText},
	types.FieldPayer:     {kind: KindText},
	types.FieldPlan:      {kind: KindText},
	types.FieldProvider:  {kind: KindText},
	types.FieldGender:    {kind: KindText},
	types.FieldUnits:     {kind: KindNumeric},
	types.FieldAge:       {kind: KindNumeric},
	types.FieldDate:      {kind: KindDate},
}

// KindOf returns the value kind of field, or ErrUnsupportedOperator for
// unknown fields.
func KindOf(field types.Field) (FieldKind, error) {
	spec, ok := fieldSpecs[field]
	if !ok {
		return KindUnspecified, fmt.Errorf("%w: unknown field %q", types.ErrUnsupportedOperator, field)
	}
	return spec.kind, nil
}

// IsMultiValued reports whether field holds a list of codes.
func IsMultiValued(field types.Field) bool {
	return fieldSpecs[field].multi
}

// Resolve returns the claim's values for field.
func Resolve(field types.Field, claim *types.Claim) (ResolveResult, error) {
	if _, ok := fieldSpecs[field]; !ok {
		return ResolveResult{}, fmt.Errorf("%w: unknown field %q", types.ErrUnsupportedOperator, field)
	}
	if claim == nil {
		return ResolveResult{}, nil
	}

	switch field {
	case types.FieldDiagnosis:
		return codes(claim.DiagnosisCodes), nil
	case types.FieldProcedure:
		return codes(claim.ProcedureCodes), nil
	case types.FieldModifier:
		return codes(claim.Modifiers), nil
	case types.FieldPOS:
		return text(claim.PlaceOfService), nil
	case types.FieldPayer:
		return text(claim.PayerID), nil
	case types.FieldPlan:
		return text(claim.PlanID), nil
	case types.FieldProvider:
		return text(claim.ProviderID), nil
	case types.FieldGender:
		return text(claim.PatientGender), nil
	case types.FieldUnits:
		return number(claim.Units), nil
	case types.FieldAge:
		return number(claim.PatientAge), nil
	case types.FieldDate:
		if claim.DateOfService.IsZero() {
			return ResolveResult{}, nil
		}
		return ResolveResult{Values: []any{dayOf(claim.DateOfService)}, Found: true}, nil
	}
	return ResolveResult{}, nil
}

// codes converts a code list, dropping blank entries.
func codes(list []string) ResolveResult {
	values := make([]any, 0, len(list))
	for _, c := range list {
		if c == "" {
			continue
		}
		values = append(values, c)
	}
	return ResolveResult{Values: values, Found: len(values) > 0}
}

func text(s string) ResolveResult {
	if s == "" {
		return ResolveResult{}
	}
	return ResolveResult{Values: []any{s}, Found: true}
}

func number(n *int) ResolveResult {
	if n == nil {
		return ResolveResult{}
	}
	return ResolveResult{Values: []any{float64(*n)}, Found: true}
}

// scopeAttribute returns the claim attribute a scoped rule's scopeId is
// matched against.
func scopeAttribute(scope types.Scope, claim *types.Claim) string {
	switch scope {
	case types.ScopePayer:
		return claim.PayerID
	case types.ScopePlan:
		return claim.PlanID
	case types.ScopeSpecialty:
		return claim.Specialty
	default:
		return ""
	}
}
