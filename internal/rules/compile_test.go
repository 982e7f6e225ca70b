package rules

import (
	"errors"
	"testing"

	"github.com/solatis/claimscrub/internal/types"
)

func TestCompile_SampleRules(t *testing.T) {
	for _, rule := range []types.Rule{ncciRule(), lcdRule(), modifierRule("MOD-1", false)} {
		compiled := mustCompile(t, rule)
		if compiled.RuleID != rule.ID {
			t.Errorf("RuleID = %v, want %v", compiled.RuleID, rule.ID)
		}
		if len(compiled.Conditions) != len(rule.Conditions) {
			t.Errorf("%s: len(Conditions) = %d, want %d", rule.ID, len(compiled.Conditions), len(rule.Conditions))
		}
		if len(compiled.Actions) != len(rule.Actions) {
			t.Errorf("%s: len(Actions) = %d, want %d", rule.ID, len(compiled.Actions), len(rule.Actions))
		}
		if compiled.Cost <= 0 {
			t.Errorf("%s: Cost = %d, want > 0", rule.ID, compiled.Cost)
		}
	}
}

func TestCompile_ConditionsKeepAuthoredOrder(t *testing.T) {
	rule := lcdRule()
	compiled := mustCompile(t, rule)

	want := []types.Field{types.FieldProcedure, types.FieldDiagnosis, types.FieldAge}
	for i, f := range want {
		if compiled.Conditions[i].Field != f {
			t.Errorf("Conditions[%d].Field = %v, want %v", i, compiled.Conditions[i].Field, f)
		}
	}
	// Cheap numeric test is last; cost never reorders a left-to-right fold.
	if compiled.Conditions[2].Cost >= compiled.Conditions[1].Cost {
		t.Errorf("age cost %d should be below diagnosis in-list cost %d", compiled.Conditions[2].Cost, compiled.Conditions[1].Cost)
	}
}

func TestCompile_TypedActionParams(t *testing.T) {
	compiled := mustCompile(t, lcdRule())
	params, ok := compiled.Actions[0].Params.(RequireAuthParams)
	if !ok {
		t.Fatalf("Params = %T, want RequireAuthParams", compiled.Actions[0].Params)
	}
	if params.AuthType != "imaging" {
		t.Errorf("AuthType = %q, want imaging", params.AuthType)
	}
}

func TestCompile_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *types.Rule)
		wantErr error
	}{
		{"missing id", func(r *types.Rule) { r.ID = "" }, types.ErrRuleValidation},
		{"blank name", func(r *types.Rule) { r.Name = "  " }, types.ErrRuleValidation},
		{"unknown type", func(r *types.Rule) { r.Type = "policy" }, types.ErrRuleValidation},
		{"payer scope without id", func(r *types.Rule) { r.Scope = types.ScopePayer }, types.ErrRuleValidation},
		{"priority zero", func(r *types.Rule) { r.Priority = 0 }, types.ErrRuleValidation},
		{"priority above max", func(r *types.Rule) { r.Priority = 101 }, types.ErrRuleValidation},
		{"expiration before effective", func(r *types.Rule) {
			exp := day("2023-12-31")
			r.ExpirationDate = &exp
		}, types.ErrRuleValidation},
		{"active without conditions", func(r *types.Rule) { r.Conditions = nil }, types.ErrRuleValidation},
		{"active without actions", func(r *types.Rule) { r.Actions = nil }, types.ErrRuleValidation},
		{"first condition with logical", func(r *types.Rule) { r.Conditions[0].LogicalOperator = types.LogicalAnd }, types.ErrRuleValidation},
		{"later condition without logical", func(r *types.Rule) { r.Conditions[1].LogicalOperator = types.LogicalNone }, types.ErrRuleValidation},
		{"lowercase logical", func(r *types.Rule) { r.Conditions[1].LogicalOperator = "and" }, types.ErrRuleValidation},
		{"operator on wrong kind", func(r *types.Rule) { r.Conditions[0].Operator = types.OpGreaterThan }, types.ErrTypeMismatch},
		{"unknown operator", func(r *types.Rule) { r.Conditions[0].Operator = "like" }, types.ErrUnsupportedOperator},
		{"deny below error", func(r *types.Rule) { r.Actions[0].Severity = types.SeverityWarning }, types.ErrRuleValidation},
		{"unknown severity", func(r *types.Rule) { r.Actions[0].Severity = "fatal" }, types.ErrRuleValidation},
		{"unknown action", func(r *types.Rule) { r.Actions[0].Type = "escalate" }, types.ErrInvalidActionParameters},
		{"too many conditions", func(r *types.Rule) {
			for len(r.Conditions) <= types.MaxConditions {
				r.Conditions = append(r.Conditions, types.Condition{Field: types.FieldPayer, Operator: types.OpExists, LogicalOperator: types.LogicalAnd})
			}
		}, types.ErrRuleValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := ncciRule()
			tt.mutate(&rule)
			_, err := Compile(&rule)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Compile() error = %v, want %v", err, tt.wantErr)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Compile() error type = %T, want *ValidationError", err)
			}
			if len(verr.Problems) == 0 {
				t.Errorf("ValidationError has no problems")
			}
		})
	}
}

func TestCompile_CollectsAllProblems(t *testing.T) {
	rule := ncciRule()
	rule.Name = ""
	rule.Priority = 0
	rule.Actions[0].Parameters = nil
	rule.Actions[0].Type = types.ActionLimitUnits

	_, err := Compile(&rule)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Compile() error = %v, want *ValidationError", err)
	}
	if len(verr.Problems) != 3 {
		t.Errorf("len(Problems) = %d, want 3: %v", len(verr.Problems), verr.Problems)
	}
	if !errors.Is(err, types.ErrInvalidActionParameters) {
		t.Errorf("error does not unwrap to ErrInvalidActionParameters: %v", err)
	}
}

func TestCompile_DraftMayBeIncomplete(t *testing.T) {
	rule := ncciRule()
	rule.Status = types.StatusDraft
	rule.Conditions = nil
	rule.Actions = nil

	if err := Validate(&rule); err != nil {
		t.Fatalf("Validate(draft) error = %v, want nil", err)
	}
	if err := ValidateFor(&rule, types.StatusTesting); !errors.Is(err, types.ErrRuleValidation) {
		t.Errorf("ValidateFor(testing) error = %v, want ErrRuleValidation", err)
	}
}

func TestCompile_MaximumINValues(t *testing.T) {
	values := make([]any, types.MaxInOperatorValues)
	for i := range values {
		values[i] = i
	}
	rule := ncciRule()
	rule.Conditions = []types.Condition{{Field: types.FieldUnits, Operator: types.OpIn, Value: values}}

	compiled := mustCompile(t, rule)
	if len(compiled.Conditions[0].Values) != types.MaxInOperatorValues {
		t.Errorf("len(Values) = %d, want %d", len(compiled.Conditions[0].Values), types.MaxInOperatorValues)
	}

	rule.Conditions[0].Value = append(values, 999)
	if _, err := Compile(&rule); !errors.Is(err, types.ErrTooManyInValues) {
		t.Errorf("Compile() error = %v, want ErrTooManyInValues", err)
	}
}

func TestDecodeActionParams(t *testing.T) {
	tests := []struct {
		name    string
		typ     types.ActionType
		raw     map[string]any
		want    string
		wantErr error
	}{
		{"require modifier", types.ActionRequireModifier, map[string]any{"modifier": "25"}, "modifier=25;prohibited=false", nil},
		{"prohibit modifier string bool", types.ActionRequireModifier, map[string]any{"modifier": "59", "prohibited": "true"}, "modifier=59;prohibited=true", nil},
		{"require modifier missing", types.ActionRequireModifier, nil, "", types.ErrInvalidActionParameters},
		{"limit units", types.ActionLimitUnits, map[string]any{"code": "97110", "maxUnits": 4}, "code=97110;max=4", nil},
		{"limit units fractional", types.ActionLimitUnits, map[string]any{"maxUnits": 1.5}, "", types.ErrInvalidActionParameters},
		{"limit units zero", types.ActionLimitUnits, map[string]any{"maxUnits": 0}, "", types.ErrInvalidActionParameters},
		{"bundle codes sorted", types.ActionBundleCodes, map[string]any{"primary": "99213", "codes": []any{"93010", "93000"}}, "primary=99213;codes=93000,93010", nil},
		{"bundle without primary", types.ActionBundleCodes, map[string]any{"codes": []any{"93000"}}, "", types.ErrInvalidActionParameters},
		{"unbundle", types.ActionUnbundleCodes, map[string]any{"codes": "97140", "modifier": "59"}, "codes=97140;modifier=59", nil},
		{"adjust amount string", types.ActionAdjustAmount, map[string]any{"delta": "-12.50"}, "delta=-12.5", nil},
		{"adjust amount float", types.ActionAdjustAmount, map[string]any{"delta": 20.25}, "delta=20.25", nil},
		{"adjust amount zero", types.ActionAdjustAmount, map[string]any{"delta": 0}, "", types.ErrInvalidActionParameters},
		{"adjust amount garbage", types.ActionAdjustAmount, map[string]any{"delta": "ten"}, "", types.ErrInvalidActionParameters},
		{"deny", types.ActionDenyClaim, map[string]any{"reasonCode": "co-97"}, "reason=CO-97", nil},
		{"warn without params", types.ActionWarn, nil, "code=", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := DecodeActionParams(tt.typ, tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeActionParams() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeActionParams() error = %v", err)
			}
			if params.ActionType() != tt.typ {
				t.Errorf("ActionType() = %v, want %v", params.ActionType(), tt.typ)
			}
			if got := params.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}
