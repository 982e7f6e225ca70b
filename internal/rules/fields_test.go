package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/claimscrub/internal/types"
)

func TestResolve(t *testing.T) {
	claim := lcdClaim()
	claim.Modifiers = []string{"", "25"}
	claim.DateOfService = day("2024-06-15").Add(13 * time.Hour)

	tests := []struct {
		name      string
		field     types.Field
		want      []any
		wantFound bool
	}{
		{name: "diagnosis list", field: types.FieldDiagnosis, want: []any{"M54.5"}, wantFound: true},
		{name: "procedure list", field: types.FieldProcedure, want: []any{"72148"}, wantFound: true},
		{name: "modifier drops blanks", field: types.FieldModifier, want: []any{"25"}, wantFound: true},
		{name: "payer", field: types.FieldPayer, want: []any{"medicare"}, wantFound: true},
		{name: "age as float64", field: types.FieldAge, want: []any{70.0}, wantFound: true},
		{name: "units as float64", field: types.FieldUnits, want: []any{1.0}, wantFound: true},
		{name: "date truncated to day", field: types.FieldDate, want: []any{day("2024-06-15")}, wantFound: true},
		{name: "unset plan", field: types.FieldPlan, wantFound: false},
		{name: "unset gender", field: types.FieldGender, wantFound: false},
		{name: "unset pos", field: types.FieldPOS, wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.field, &claim)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.Found != tt.wantFound {
				t.Fatalf("Resolve() Found = %v, want %v", got.Found, tt.wantFound)
			}
			if len(got.Values) != len(tt.want) {
				t.Fatalf("Resolve() Values = %v, want %v", got.Values, tt.want)
			}
			for i := range tt.want {
				if !compareEqual(got.Values[i], tt.want[i]) {
					t.Errorf("Resolve() Values[%d] = %v, want %v", i, got.Values[i], tt.want[i])
				}
			}
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	claim := lcdClaim()
	if _, err := Resolve("charge", &claim); !errors.Is(err, types.ErrUnsupportedOperator) {
		t.Errorf("Resolve(unknown) error = %v, want ErrUnsupportedOperator", err)
	}
	got, err := Resolve(types.FieldPayer, nil)
	if err != nil || got.Found {
		t.Errorf("Resolve(nil claim) = %+v, %v, want not found", got, err)
	}
}

func TestKindOf(t *testing.T) {
	tests := map[types.Field]FieldKind{
		types.FieldDiagnosis: KindText,
		types.FieldModifier:  KindText,
		types.FieldUnits:     KindNumeric,
		types.FieldAge:       KindNumeric,
		types.FieldDate:      KindDate,
	}
	for field, want := range tests {
		got, err := KindOf(field)
		if err != nil || got != want {
			t.Errorf("KindOf(%s) = %v, %v, want %v", field, got, err, want)
		}
	}
	if _, err := KindOf("npi"); !errors.Is(err, types.ErrUnsupportedOperator) {
		t.Errorf("KindOf(npi) error = %v, want ErrUnsupportedOperator", err)
	}
}

var allFields = []types.Field{
	types.FieldDiagnosis, types.FieldProcedure, types.FieldModifier, types.FieldPOS,
	types.FieldPayer, types.FieldPlan, types.FieldProvider, types.FieldUnits,
	types.FieldAge, types.FieldGender, types.FieldDate,
}

var (
	genProcedures = []string{"", "99213", "93000", "72148"}
	genModifiers  = []string{"", "25", "59"}
	genPayers     = []string{"", "medicare", "bcbs"}
)

func pick(pool []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = pool[n]
	}
	return out
}

// genClaim produces claims with each attribute independently present or absent.
func genClaim() gopter.Gen {
	return gopter.CombineGens(
		gen.SliceOfN(3, gen.IntRange(0, len(genProcedures)-1)),
		gen.SliceOfN(2, gen.IntRange(0, len(genModifiers)-1)),
		gen.IntRange(0, len(genPayers)-1),
		gen.IntRange(-1, 100),
		gen.IntRange(0, 365),
	).Map(func(vals []interface{}) types.Claim {
		c := types.Claim{
			ClaimID:        "CLM-GEN",
			ProcedureCodes: pick(genProcedures, vals[0].([]int)),
			Modifiers:      pick(genModifiers, vals[1].([]int)),
			PayerID:        genPayers[vals[2].(int)],
		}
		if age := vals[3].(int); age >= 0 {
			c.PatientAge = &age
		}
		if offset := vals[4].(int); offset > 0 {
			c.DateOfService = day("2024-01-01").AddDate(0, 0, offset)
		}
		return c
	})
}

// exists and not_exists partition every claim: exactly one holds.
func TestExists_PropertyNeverMismatches(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("exists and not_exists are complementary for every field", prop.ForAll(
		func(claim types.Claim, fieldIdx int) bool {
			field := allFields[fieldIdx]
			exists, err1 := EvaluateCondition(types.Condition{Field: field, Operator: types.OpExists}, &claim)
			missing, err2 := EvaluateCondition(types.Condition{Field: field, Operator: types.OpNotExists}, &claim)
			if err1 != nil || err2 != nil {
				return false
			}
			resolved, _ := Resolve(field, &claim)
			return exists != missing && exists == resolved.Found
		},
		genClaim(),
		gen.IntRange(0, len(allFields)-1),
	))

	properties.TestingRun(t)
}

func TestResolve_PropertyNeverCrashes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("resolution never crashes regardless of claim shape", prop.ForAll(
		func(claim types.Claim) bool {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Resolve() panicked: %v", r)
				}
			}()
			for _, f := range allFields {
				if _, err := Resolve(f, &claim); err != nil {
					return false
				}
			}
			return true
		},
		genClaim(),
	))

	properties.TestingRun(t)
}
