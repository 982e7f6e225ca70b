// internal/rules/select.go
package rules

import (
	"sort"
	"strings"
	"time"

	"github.com/solatis/claimscrub/internal/types"
)

/*
 * Candidate selection and prioritization.
 *
 * Filters a rule set to the rules applicable to one claim and orders them
 * for deterministic application.
 *
 * Filters:
 *   - status == active (scrubbing only; the test harness selects any status)
 *   - effectiveDate <= asOf <= expirationDate (day granularity, open end
 *     when no expiration)
 *   - scope: global always; payer/plan/specialty when scopeId equals the
 *     claim's payer/plan/specialty (case-insensitive)
 *
 * Order: priority desc, effectiveDate asc (older rule wins ties), rule id
 * asc. Input duplicates (same id) keep the first occurrence.
 */

// SelectCandidates returns the active rules applicable to claim on asOf.
func SelectCandidates(claim *types.Claim, rules []*CompiledRule, asOf time.Time) []*CompiledRule {
	return selectRules(claim, rules, asOf, true)
}

func selectRules(claim *types.Claim, rules []*CompiledRule, asOf time.Time, requireActive bool) []*CompiledRule {
	seen := make(map[types.RuleID]struct{}, len(rules))
	out := make([]*CompiledRule, 0, len(rules))

	for _, rule := range rules {
		if rule == nil {
			continue
		}
		if _, dup := seen[rule.RuleID]; dup {
			continue
		}
		seen[rule.RuleID] = struct{}{}

		if requireActive && rule.Status != types.StatusActive {
			continue
		}
		if !InEffect(rule, asOf) {
			continue
		}
		if !ScopeMatches(rule, claim) {
			continue
		}
		out = append(out, rule)
	}

	SortByPriority(out)
	return out
}

// SortByPriority orders rules priority desc, effectiveDate asc, id asc.
func SortByPriority(rules []*CompiledRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.EffectiveDate.Equal(b.EffectiveDate) {
			return a.EffectiveDate.Before(b.EffectiveDate)
		}
		return a.RuleID < b.RuleID
	})
}

// InEffect reports whether asOf falls within the rule's effective window.
func InEffect(rule *CompiledRule, asOf time.Time) bool {
	day := dayOf(asOf)
	if day.Before(dayOf(rule.EffectiveDate)) {
		return false
	}
	if rule.ExpirationDate != nil && day.After(dayOf(*rule.ExpirationDate)) {
		return false
	}
	return true
}

// ScopeMatches reports whether the rule's scope covers claim.
func ScopeMatches(rule *CompiledRule, claim *types.Claim) bool {
	if rule.Scope == types.ScopeGlobal {
		return true
	}
	if claim == nil {
		return false
	}
	attr := scopeAttribute(rule.Scope, claim)
	return attr != "" && strings.EqualFold(attr, rule.ScopeID)
}
