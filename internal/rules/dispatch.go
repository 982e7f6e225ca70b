// internal/rules/dispatch.go
package rules

import (
	"encoding/json"
	"fmt"

	"github.com/solatis/claimscrub/internal/types"
)

/*
 * Action dispatch.
 *
 * Turns a matched rule's actions into outcomes, in authored order. The
 * dispatcher never mutates the claim: outcomes are intents (append modifier
 * 25, cap units at 1, adjust by -12.50) for the caller to apply.
 *
 * deny_claim outcomes are Terminal. Whether a terminal outcome stops
 * lower-priority rules is the engine's stop-on-deny policy, not decided here.
 *
 * Parameters are re-validated so hand-built CompiledRules cannot slip a
 * malformed action through; failures surface as ErrInvalidActionParameters
 * and the rule yields no outcomes.
 */

// ActionOutcome is the intent produced by one action of a matched rule.
type ActionOutcome struct {
	RuleID   types.RuleID     `json:"ruleId"`
	Type     types.ActionType `json:"type"`
	Severity types.Severity   `json:"severity"`
	Message  string           `json:"message"`
	Params   ActionParams     `json:"parameters"`
	Terminal bool             `json:"terminal,omitempty"`
}

// UnmarshalJSON decodes parameters back into the typed struct for the
// outcome's action type, so stored reports read back intact.
func (o *ActionOutcome) UnmarshalJSON(data []byte) error {
	type plain ActionOutcome
	aux := struct {
		*plain
		Params map[string]any `json:"parameters"`
	}{plain: (*plain)(o)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Params == nil {
		o.Params = nil
		return nil
	}
	params, err := DecodeActionParams(o.Type, aux.Params)
	if err != nil {
		return err
	}
	o.Params = params
	return nil
}

// Apply executes the rule's actions against a matched claim.
func Apply(rule *CompiledRule, claim *types.Claim) ([]ActionOutcome, error) {
	outcomes := make([]ActionOutcome, 0, len(rule.Actions))

	for i, action := range rule.Actions {
		if action.Params == nil {
			return nil, actionError(rule, claim, i, fmt.Errorf("%w: %s has no parameters", types.ErrInvalidActionParameters, action.Type))
		}
		if action.Params.ActionType() != action.Type {
			return nil, actionError(rule, claim, i, fmt.Errorf("%w: %s parameters for %s action",
				types.ErrInvalidActionParameters, action.Params.ActionType(), action.Type))
		}
		if err := action.Params.Validate(); err != nil {
			return nil, actionError(rule, claim, i, err)
		}

		outcomes = append(outcomes, ActionOutcome{
			RuleID:   rule.RuleID,
			Type:     action.Type,
			Severity: action.Severity,
			Message:  action.Message,
			Params:   action.Params,
			Terminal: action.Type == types.ActionDenyClaim,
		})
	}

	return outcomes, nil
}

func actionError(rule *CompiledRule, claim *types.Claim, idx int, err error) error {
	return &types.EvaluationError{
		RuleID:  rule.RuleID,
		ClaimID: claimID(claim),
		Err:     fmt.Errorf("action %d: %w", idx, err),
	}
}
