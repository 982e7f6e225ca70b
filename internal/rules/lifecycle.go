package rules

import (
	"fmt"
	"time"

	"github.com/solatis/claimscrub/internal/types"
)

// transitions lists the allowed status changes. archived is terminal.
var transitions = map[types.Status][]types.Status{
	types.StatusDraft:   {types.StatusTesting, types.StatusArchived},
	types.StatusTesting: {types.StatusActive, types.StatusDraft, types.StatusArchived},
	types.StatusActive:  {types.StatusTesting, types.StatusArchived},
}

// Transition moves rule to status `to`, stamping the audit fields and
// bumping the version. Promotion past draft requires the rule to validate
// for its new status; draft -> testing also requires an attached TestResult.
func Transition(rule *types.Rule, to types.Status, actor string, now time.Time) error {
	if !allowed(rule.Status, to) {
		return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, rule.Status, to)
	}

	if to == types.StatusTesting || to == types.StatusActive {
		if err := ValidateFor(rule, to); err != nil {
			return err
		}
	}
	if rule.Status == types.StatusDraft && to == types.StatusTesting && rule.TestResult == nil {
		return fmt.Errorf("%w: draft -> testing requires a test result", types.ErrInvalidTransition)
	}

	rule.Status = to
	rule.ModifiedBy = actor
	rule.ModifiedAt = now
	rule.Version++
	return nil
}

func allowed(from, to types.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
