package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solatis/claimscrub/internal/types"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func intPtr(n int) *int { return &n }

// ncciRule is the office visit + ECG edit: 99213 and 93000 billed together.
func ncciRule() types.Rule {
	return types.Rule{
		ID:       "NCCI-001",
		Name:     "E/M with ECG bundling edit",
		Type:     types.RuleTypeNCCI,
		Scope:    types.ScopeGlobal,
		Status:   types.StatusActive,
		Priority: 90,
		Version:  1,
		Conditions: []types.Condition{
			{Field: types.FieldProcedure, Operator: types.OpEquals, Value: "99213"},
			{Field: types.FieldProcedure, Operator: types.OpEquals, Value: "93000", LogicalOperator: types.LogicalAnd},
		},
		Actions: []types.Action{{
			Type:       types.ActionDenyClaim,
			Parameters: map[string]any{"reasonCode": "CO-97"},
			Message:    "93000 is bundled into 99213 on the same date of service",
			Severity:   types.SeverityError,
		}},
		EffectiveDate: day("2024-01-01"),
	}
}

// lcdRule requires prior auth for lumbar MRI on medicare patients over 65.
func lcdRule() types.Rule {
	return types.Rule{
		ID:       "LCD-L35936",
		Name:     "Lumbar MRI prior authorization",
		Type:     types.RuleTypeLCD,
		Scope:    types.ScopePayer,
		ScopeID:  "medicare",
		Status:   types.StatusActive,
		Priority: 80,
		Version:  1,
		Conditions: []types.Condition{
			{Field: types.FieldProcedure, Operator: types.OpEquals, Value: "72148"},
			{Field: types.FieldDiagnosis, Operator: types.OpIn, Value: []any{"M54.5", "M54.16"}, LogicalOperator: types.LogicalAnd},
			{Field: types.FieldAge, Operator: types.OpGreaterThan, Value: 65, LogicalOperator: types.LogicalAnd},
		},
		Actions: []types.Action{{
			Type:       types.ActionRequireAuth,
			Parameters: map[string]any{"authType": "imaging"},
			Message:    "Lumbar MRI requires prior authorization",
			Severity:   types.SeverityError,
		}},
		EffectiveDate: day("2024-01-01"),
	}
}

// modifierRule targets bcbs office visits and requires or forbids modifier 25.
func modifierRule(id types.RuleID, prohibited bool) types.Rule {
	return types.Rule{
		ID:       id,
		Name:     "bcbs modifier 25 policy",
		Type:     types.RuleTypeModifier,
		Scope:    types.ScopePayer,
		ScopeID:  "bcbs",
		Status:   types.StatusActive,
		Priority: 50,
		Version:  1,
		Conditions: []types.Condition{
			{Field: types.FieldProcedure, Operator: types.OpEquals, Value: "99213"},
			{Field: types.FieldProcedure, Operator: types.OpEquals, Value: "20610", LogicalOperator: types.LogicalAnd},
		},
		Actions: []types.Action{{
			Type:       types.ActionRequireModifier,
			Parameters: map[string]any{"modifier": "25", "prohibited": prohibited},
			Message:    "modifier 25 policy",
			Severity:   types.SeverityWarning,
		}},
		EffectiveDate: day("2024-01-01"),
	}
}

func ncciClaim() types.Claim {
	return types.Claim{
		ClaimID:        "CLM-1001",
		DiagnosisCodes: []string{"I10"},
		ProcedureCodes: []string{"99213", "93000"},
		PayerID:        "aetna",
		PatientAge:     intPtr(54),
		DateOfService:  day("2024-06-15"),
		ChargeAmount:   decimal.RequireFromString("245.00"),
	}
}

func lcdClaim() types.Claim {
	return types.Claim{
		ClaimID:        "CLM-2001",
		DiagnosisCodes: []string{"M54.5"},
		ProcedureCodes: []string{"72148"},
		PayerID:        "medicare",
		PatientAge:     intPtr(70),
		Units:          intPtr(1),
		DateOfService:  day("2024-06-15"),
		ChargeAmount:   decimal.RequireFromString("1200.00"),
	}
}

func mustCompile(t *testing.T, rule types.Rule) *CompiledRule {
	t.Helper()
	compiled, err := Compile(&rule)
	if err != nil {
		t.Fatalf("Compile(%s) error = %v, want nil", rule.ID, err)
	}
	return compiled
}
