package rules

import (
	"errors"
	"testing"

	"github.com/solatis/claimscrub/internal/types"
)

func TestEvaluateCondition_AllOperators(t *testing.T) {
	claim := lcdClaim()
	claim.Modifiers = []string{"25", "LT"}

	tests := []struct {
		name string
		cond types.Condition
		want bool
	}{
		{"equals any code", types.Condition{Field: types.FieldProcedure, Operator: types.OpEquals, Value: "72148"}, true},
		{"equals case-insensitive", types.Condition{Field: types.FieldModifier, Operator: types.OpEquals, Value: "lt"}, true},
		{"equals no match", types.Condition{Field: types.FieldProcedure, Operator: types.OpEquals, Value: "99213"}, false},
		{"not_equals absent code", types.Condition{Field: types.FieldProcedure, Operator: types.OpNotEquals, Value: "99213"}, true},
		{"not_equals present code", types.Condition{Field: types.FieldModifier, Operator: types.OpNotEquals, Value: "25"}, false},
		{"contains", types.Condition{Field: types.FieldDiagnosis, Operator: types.OpContains, Value: "54"}, true},
		{"starts_with", types.Condition{Field: types.FieldDiagnosis, Operator: types.OpStartsWith, Value: "m54"}, true},
		{"ends_with", types.Condition{Field: types.FieldDiagnosis, Operator: types.OpEndsWith, Value: ".6"}, false},
		{"in", types.Condition{Field: types.FieldModifier, Operator: types.OpIn, Value: []any{"59", "25"}}, true},
		{"in scalar", types.Condition{Field: types.FieldPayer, Operator: types.OpIn, Value: "MEDICARE"}, true},
		{"not_in", types.Condition{Field: types.FieldModifier, Operator: types.OpNotIn, Value: []string{"59", "XS"}}, true},
		{"not_in excluded", types.Condition{Field: types.FieldModifier, Operator: types.OpNotIn, Value: []string{"25"}}, false},
		{"greater_than", types.Condition{Field: types.FieldAge, Operator: types.OpGreaterThan, Value: 65}, true},
		{"greater_than boundary", types.Condition{Field: types.FieldAge, Operator: types.OpGreaterThan, Value: 70}, false},
		{"less_than", types.Condition{Field: types.FieldUnits, Operator: types.OpLessThan, Value: "2"}, true},
		{"between inclusive", types.Condition{Field: types.FieldAge, Operator: types.OpBetween, Value: types.Range{Min: 65, Max: 70}}, true},
		{"between outside", types.Condition{Field: types.FieldAge, Operator: types.OpBetween, Value: []any{0, 17}}, false},
		{"date greater_than", types.Condition{Field: types.FieldDate, Operator: types.OpGreaterThan, Value: "2024-06-14"}, true},
		{"date between", types.Condition{Field: types.FieldDate, Operator: types.OpBetween, Value: map[string]any{"min": "2024-01-01", "max": "2024-06-15"}}, true},
		{"date equals", types.Condition{Field: types.FieldDate, Operator: types.OpEquals, Value: "2024-06-15"}, true},
		{"exists", types.Condition{Field: types.FieldAge, Operator: types.OpExists}, true},
		{"not_exists", types.Condition{Field: types.FieldPlan, Operator: types.OpNotExists}, true},

		// Missing fields: positive operators false, negations true
		{"missing equals", types.Condition{Field: types.FieldPlan, Operator: types.OpEquals, Value: "HMO"}, false},
		{"missing in", types.Condition{Field: types.FieldGender, Operator: types.OpIn, Value: []any{"F"}}, false},
		{"missing contains", types.Condition{Field: types.FieldPOS, Operator: types.OpContains, Value: "1"}, false},
		{"missing not_equals", types.Condition{Field: types.FieldPlan, Operator: types.OpNotEquals, Value: "HMO"}, true},
		{"missing not_in", types.Condition{Field: types.FieldGender, Operator: types.OpNotIn, Value: []any{"F"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateCondition(tt.cond, &claim)
			if err != nil {
				t.Fatalf("EvaluateCondition() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("EvaluateCondition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateCondition_Errors(t *testing.T) {
	claim := lcdClaim()

	tests := []struct {
		name    string
		cond    types.Condition
		wantErr error
	}{
		{"unknown operator", types.Condition{Field: types.FieldPayer, Operator: "matches", Value: "x"}, types.ErrUnsupportedOperator},
		{"unknown field", types.Condition{Field: "npi", Operator: types.OpEquals, Value: "x"}, types.ErrUnsupportedOperator},
		{"contains on numeric", types.Condition{Field: types.FieldAge, Operator: types.OpContains, Value: "7"}, types.ErrTypeMismatch},
		{"greater_than on text", types.Condition{Field: types.FieldProcedure, Operator: types.OpGreaterThan, Value: "99000"}, types.ErrTypeMismatch},
		{"non-numeric value", types.Condition{Field: types.FieldAge, Operator: types.OpEquals, Value: "seventy"}, types.ErrTypeMismatch},
		{"between reversed", types.Condition{Field: types.FieldAge, Operator: types.OpBetween, Value: types.Range{Min: 70, Max: 65}}, types.ErrInvalidRange},
		{"between without range", types.Condition{Field: types.FieldAge, Operator: types.OpBetween, Value: 65}, types.ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EvaluateCondition(tt.cond, &claim); !errors.Is(err, tt.wantErr) {
				t.Errorf("EvaluateCondition() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompare_BetweenRecheck(t *testing.T) {
	cond := &CompiledCondition{Field: types.FieldAge, Kind: KindNumeric, Operator: types.OpBetween, Min: 10.0, Max: 5.0}
	_, err := Compare(cond, ResolveResult{Values: []any{7.0}, Found: true})
	if !errors.Is(err, types.ErrInvalidRange) {
		t.Errorf("Compare() error = %v, want ErrInvalidRange", err)
	}
}

func TestCheckOperator(t *testing.T) {
	if err := CheckOperator(types.OpBetween, KindDate); err != nil {
		t.Errorf("CheckOperator(between, date) = %v, want nil", err)
	}
	if err := CheckOperator(types.OpStartsWith, KindDate); !errors.Is(err, types.ErrTypeMismatch) {
		t.Errorf("CheckOperator(starts_with, date) = %v, want ErrTypeMismatch", err)
	}
	if err := CheckOperator("regex", KindText); !errors.Is(err, types.ErrUnsupportedOperator) {
		t.Errorf("CheckOperator(regex) = %v, want ErrUnsupportedOperator", err)
	}
}
