// internal/rules/compile.go
package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/solatis/claimscrub/internal/types"
)

/*
 * Rule compilation and validation.
 *
 * Compiles types.Rule to CompiledRule with normalized condition values,
 * decoded action parameters and a cost figure.
 *
 * Compilation workflow:
 *   1. Validate rule metadata (type, scope, priority, effective window)
 *   2. Compile conditions: field kind, operator applicability, value coercion
 *   3. Check logical operator chaining (first none, rest AND/OR)
 *   4. Decode and validate actions, enforce deny/auth severity floor
 *   5. Enforce completeness for testing/active rules
 *   6. Calculate cost
 *
 * Every problem is collected into one ValidationError so the rule editor can
 * show all of them at once. ValidationError unwraps to ErrRuleValidation and
 * to each underlying sentinel (ErrTypeMismatch, ErrInvalidRange, ...).
 *
 * Conditions keep their authored order. The combinator's left-to-right fold
 * makes order significant, unlike cost-sorted AND groups.
 */

// CompiledCondition is a pre-processed condition ready for evaluation.
type CompiledCondition struct {
	Field    types.Field
	Kind     FieldKind
	Operator types.Operator
	Logical  types.LogicalOperator
	Value    any   // scalar target (equals, not_equals, contains, ...)
	Values   []any // in/not_in targets
	Min      any   // between lower bound
	Max      any   // between upper bound
	Cost     int
}

// CompiledAction is an action with decoded parameters.
type CompiledAction struct {
	Type     types.ActionType
	Params   ActionParams
	Message  string
	Severity types.Severity
}

// CompiledRule is fully pre-processed and ready for evaluation.
type CompiledRule struct {
	RuleID         types.RuleID
	Name           string
	Type           types.RuleType
	Scope          types.Scope
	ScopeID        string
	Status         types.Status
	Priority       int
	Version        int
	EffectiveDate  time.Time
	ExpirationDate *time.Time
	Conditions     []CompiledCondition
	Actions        []CompiledAction
	Cost           int
}

// ValidationError lists every invariant a rule violates.
type ValidationError struct {
	RuleID   types.RuleID
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("%v: rule %s: %s", types.ErrRuleValidation, e.RuleID, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error {
	return append([]error{types.ErrRuleValidation}, e.Problems...)
}

// Validate checks rule against the invariants of its current status.
func Validate(rule *types.Rule) error {
	_, err := compile(rule, rule.Status)
	return err
}

// ValidateFor checks rule as if it had status.
// Used to gate promotions before the status changes.
func ValidateFor(rule *types.Rule, status types.Status) error {
	_, err := compile(rule, status)
	return err
}

// Compile validates and pre-processes a rule for evaluation.
func Compile(rule *types.Rule) (*CompiledRule, error) {
	return compile(rule, rule.Status)
}

func compile(rule *types.Rule, status types.Status) (*CompiledRule, error) {
	var problems []error
	fail := func(err error) { problems = append(problems, err) }

	if rule.ID == "" {
		fail(errors.New("id is required"))
	}
	if strings.TrimSpace(rule.Name) == "" {
		fail(errors.New("name is required"))
	}
	if !rule.Type.Valid() {
		fail(fmt.Errorf("unknown rule type %q", rule.Type))
	}
	if !rule.Scope.Valid() {
		fail(fmt.Errorf("unknown scope %q", rule.Scope))
	} else if rule.Scope != types.ScopeGlobal && rule.ScopeID == "" {
		fail(fmt.Errorf("scope %s requires scopeId", rule.Scope))
	}
	switch status {
	case types.StatusDraft, types.StatusTesting, types.StatusActive, types.StatusArchived:
	default:
		fail(fmt.Errorf("unknown status %q", status))
	}
	if rule.Priority < types.MinPriority || rule.Priority > types.MaxPriority {
		fail(fmt.Errorf("priority %d outside [%d, %d]", rule.Priority, types.MinPriority, types.MaxPriority))
	}
	if rule.ExpirationDate != nil && rule.ExpirationDate.Before(rule.EffectiveDate) {
		fail(errors.New("expirationDate precedes effectiveDate"))
	}
	if len(rule.Conditions) > types.MaxConditions {
		fail(fmt.Errorf("%d conditions exceed limit %d", len(rule.Conditions), types.MaxConditions))
	}
	if len(rule.Actions) > types.MaxActions {
		fail(fmt.Errorf("%d actions exceed limit %d", len(rule.Actions), types.MaxActions))
	}
	if status == types.StatusActive || status == types.StatusTesting {
		if len(rule.Conditions) == 0 {
			fail(fmt.Errorf("%s rule needs at least one condition", status))
		}
		if len(rule.Actions) == 0 {
			fail(fmt.Errorf("%s rule needs at least one action", status))
		}
	}

	compiled := &CompiledRule{
		RuleID:         rule.ID,
		Name:           rule.Name,
		Type:           rule.Type,
		Scope:          rule.Scope,
		ScopeID:        rule.ScopeID,
		Status:         status,
		Priority:       rule.Priority,
		Version:        rule.Version,
		EffectiveDate:  rule.EffectiveDate,
		ExpirationDate: rule.ExpirationDate,
		Conditions:     make([]CompiledCondition, 0, len(rule.Conditions)),
		Actions:        make([]CompiledAction, 0, len(rule.Actions)),
	}

	for i, cond := range rule.Conditions {
		if err := checkLogical(i, cond.LogicalOperator); err != nil {
			fail(err)
		}
		cc, err := CompileCondition(cond)
		if err != nil {
			fail(fmt.Errorf("condition %d: %w", i, err))
			continue
		}
		compiled.Conditions = append(compiled.Conditions, cc)
	}

	for i, action := range rule.Actions {
		ca, err := compileAction(action)
		if err != nil {
			fail(fmt.Errorf("action %d: %w", i, err))
			continue
		}
		compiled.Actions = append(compiled.Actions, ca)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{RuleID: rule.ID, Problems: problems}
	}

	compiled.Cost = CalculateRuleCost(compiled.Conditions, len(compiled.Actions))
	return compiled, nil
}

// checkLogical enforces the chain shape: the first condition carries no
// logicalOperator and every later one carries AND or OR.
func checkLogical(i int, op types.LogicalOperator) error {
	switch op {
	case types.LogicalNone, types.LogicalAnd, types.LogicalOr:
	default:
		return fmt.Errorf("condition %d: %w: logicalOperator %q", i, types.ErrUnsupportedOperator, op)
	}
	if i == 0 && op != types.LogicalNone {
		return fmt.Errorf("condition 0: first condition cannot have logicalOperator %q", op)
	}
	if i > 0 && op == types.LogicalNone {
		return fmt.Errorf("condition %d: logicalOperator must be AND or OR", i)
	}
	return nil
}

// CompileCondition validates a single condition and coerces its value into
// the field's kind.
func CompileCondition(cond types.Condition) (CompiledCondition, error) {
	kind, err := KindOf(cond.Field)
	if err != nil {
		return CompiledCondition{}, err
	}
	if err := CheckOperator(cond.Operator, kind); err != nil {
		return CompiledCondition{}, err
	}

	cc := CompiledCondition{
		Field:    cond.Field,
		Kind:     kind,
		Operator: cond.Operator,
		Logical:  cond.LogicalOperator,
	}

	switch cond.Operator {
	case types.OpExists, types.OpNotExists:
		// value ignored
	case types.OpIn, types.OpNotIn:
		if cc.Values, err = coerceList(cond.Value, kind); err != nil {
			return CompiledCondition{}, err
		}
	case types.OpBetween:
		if cc.Min, cc.Max, err = coerceRange(cond.Value, kind); err != nil {
			return CompiledCondition{}, err
		}
	default:
		if cc.Value, err = Coerce(cond.Value, kind); err != nil {
			return CompiledCondition{}, err
		}
	}

	cc.Cost = CalculateConditionCost(cond.Field, cond.Operator, kind, len(cc.Values))
	return cc, nil
}

// compileAction decodes parameters and enforces the severity floor for
// deny_claim and require_auth.
func compileAction(action types.Action) (CompiledAction, error) {
	if action.Severity.Rank() < 0 {
		return CompiledAction{}, fmt.Errorf("unknown severity %q", action.Severity)
	}
	if (action.Type == types.ActionDenyClaim || action.Type == types.ActionRequireAuth) &&
		action.Severity.Rank() < types.SeverityError.Rank() {
		return CompiledAction{}, fmt.Errorf("%s requires severity error or critical, got %s", action.Type, action.Severity)
	}

	params, err := DecodeActionParams(action.Type, action.Parameters)
	if err != nil {
		return CompiledAction{}, err
	}

	return CompiledAction{
		Type:     action.Type,
		Params:   params,
		Message:  action.Message,
		Severity: action.Severity,
	}, nil
}
