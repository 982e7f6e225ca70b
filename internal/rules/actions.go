// internal/rules/actions.go
package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/solatis/claimscrub/internal/types"
)

/*
 * Typed action parameters.
 *
 * Rule authors write parameters as a loose key/value map. Compilation decodes
 * the map into one parameter struct per action type so the dispatcher and the
 * conflict detector work with checked fields (AdjustAmountParams.Delta is a
 * decimal, RequireModifierParams.Modifier a code).
 *
 * Keys accepted per type:
 *   - require_modifier: modifier (required), prohibited (bool)
 *   - deny_claim: reasonCode
 *   - warn: code
 *   - require_auth: authType
 *   - limit_units: maxUnits (required, >= 1), code
 *   - bundle_codes: primary (required), codes (required)
 *   - unbundle_codes: codes (required), modifier
 *   - adjust_amount: delta (required, non-zero decimal)
 *
 * Key() returns a canonical form used to spot redundant actions.
 */

// ActionParams is the decoded parameter set of one action type.
type ActionParams interface {
	ActionType() types.ActionType
	Validate() error
	Key() string
}

// RequireModifierParams asks for (or, when Prohibited, forbids) a modifier.
type RequireModifierParams struct {
	Modifier   string `json:"modifier"`
	Prohibited bool   `json:"prohibited,omitempty"`
}

func (p RequireModifierParams) ActionType() types.ActionType { return types.ActionRequireModifier }

func (p RequireModifierParams) Validate() error {
	if p.Modifier == "" {
		return fmt.Errorf("%w: require_modifier needs a modifier", types.ErrInvalidActionParameters)
	}
	return nil
}

func (p RequireModifierParams) Key() string {
	return fmt.Sprintf("modifier=%s;prohibited=%t", strings.ToUpper(p.Modifier), p.Prohibited)
}

// DenyClaimParams marks the claim denied.
type DenyClaimParams struct {
	ReasonCode string `json:"reasonCode,omitempty"`
}

func (p DenyClaimParams) ActionType() types.ActionType { return types.ActionDenyClaim }
func (p DenyClaimParams) Validate() error              { return nil }
func (p DenyClaimParams) Key() string                  { return "reason=" + strings.ToUpper(p.ReasonCode) }

// WarnParams flags the claim for review.
type WarnParams struct {
	Code string `json:"code,omitempty"`
}

func (p WarnParams) ActionType() types.ActionType { return types.ActionWarn }
func (p WarnParams) Validate() error              { return nil }
func (p WarnParams) Key() string                  { return "code=" + strings.ToUpper(p.Code) }

// RequireAuthParams asks for a prior authorization before submission.
type RequireAuthParams struct {
	AuthType string `json:"authType,omitempty"`
}

func (p RequireAuthParams) ActionType() types.ActionType { return types.ActionRequireAuth }
func (p RequireAuthParams) Validate() error              { return nil }
func (p RequireAuthParams) Key() string                  { return "auth=" + strings.ToUpper(p.AuthType) }

// LimitUnitsParams caps billed units, optionally for one procedure code.
type LimitUnitsParams struct {
	Code     string `json:"code,omitempty"`
	MaxUnits int    `json:"maxUnits"`
}

func (p LimitUnitsParams) ActionType() types.ActionType { return types.ActionLimitUnits }

func (p LimitUnitsParams) Validate() error {
	if p.MaxUnits < 1 {
		return fmt.Errorf("%w: limit_units needs maxUnits >= 1", types.ErrInvalidActionParameters)
	}
	return nil
}

func (p LimitUnitsParams) Key() string {
	return fmt.Sprintf("code=%s;max=%d", strings.ToUpper(p.Code), p.MaxUnits)
}

// BundleCodesParams folds Codes into the Primary procedure.
type BundleCodesParams struct {
	Primary string   `json:"primary"`
	Codes   []string `json:"codes"`
}

func (p BundleCodesParams) ActionType() types.ActionType { return types.ActionBundleCodes }

func (p BundleCodesParams) Validate() error {
	if p.Primary == "" || len(p.Codes) == 0 {
		return fmt.Errorf("%w: bundle_codes needs primary and codes", types.ErrInvalidActionParameters)
	}
	return nil
}

func (p BundleCodesParams) Key() string {
	return "primary=" + strings.ToUpper(p.Primary) + ";codes=" + canonicalCodes(p.Codes)
}

// UnbundleCodesParams bills Codes separately, optionally with a modifier.
type UnbundleCodesParams struct {
	Codes    []string `json:"codes"`
	Modifier string   `json:"modifier,omitempty"`
}

func (p UnbundleCodesParams) ActionType() types.ActionType { return types.ActionUnbundleCodes }

func (p UnbundleCodesParams) Validate() error {
	if len(p.Codes) == 0 {
		return fmt.Errorf("%w: unbundle_codes needs codes", types.ErrInvalidActionParameters)
	}
	return nil
}

func (p UnbundleCodesParams) Key() string {
	return "codes=" + canonicalCodes(p.Codes) + ";modifier=" + strings.ToUpper(p.Modifier)
}

// AdjustAmountParams changes the billed amount by Delta.
type AdjustAmountParams struct {
	Delta decimal.Decimal `json:"delta"`
}

func (p AdjustAmountParams) ActionType() types.ActionType { return types.ActionAdjustAmount }

func (p AdjustAmountParams) Validate() error {
	if p.Delta.IsZero() {
		return fmt.Errorf("%w: adjust_amount needs a non-zero numeric delta", types.ErrInvalidActionParameters)
	}
	return nil
}

func (p AdjustAmountParams) Key() string { return "delta=" + p.Delta.String() }

// DecodeActionParams converts a raw parameter map into the typed parameters
// for actionType and validates them.
func DecodeActionParams(actionType types.ActionType, raw map[string]any) (ActionParams, error) {
	var params ActionParams
	var err error

	switch actionType {
	case types.ActionRequireModifier:
		var p RequireModifierParams
		if p.Modifier, err = paramString(raw, "modifier"); err != nil {
			return nil, err
		}
		if p.Prohibited, err = paramBool(raw, "prohibited"); err != nil {
			return nil, err
		}
		params = p
	case types.ActionDenyClaim:
		var p DenyClaimParams
		if p.ReasonCode, err = paramString(raw, "reasonCode"); err != nil {
			return nil, err
		}
		params = p
	case types.ActionWarn:
		var p WarnParams
		if p.Code, err = paramString(raw, "code"); err != nil {
			return nil, err
		}
		params = p
	case types.ActionRequireAuth:
		var p RequireAuthParams
		if p.AuthType, err = paramString(raw, "authType"); err != nil {
			return nil, err
		}
		params = p
	case types.ActionLimitUnits:
		var p LimitUnitsParams
		if p.Code, err = paramString(raw, "code"); err != nil {
			return nil, err
		}
		if p.MaxUnits, err = paramInt(raw, "maxUnits"); err != nil {
			return nil, err
		}
		params = p
	case types.ActionBundleCodes:
		var p BundleCodesParams
		if p.Primary, err = paramString(raw, "primary"); err != nil {
			return nil, err
		}
		if p.Codes, err = paramCodes(raw, "codes"); err != nil {
			return nil, err
		}
		params = p
	case types.ActionUnbundleCodes:
		var p UnbundleCodesParams
		if p.Codes, err = paramCodes(raw, "codes"); err != nil {
			return nil, err
		}
		if p.Modifier, err = paramString(raw, "modifier"); err != nil {
			return nil, err
		}
		params = p
	case types.ActionAdjustAmount:
		var p AdjustAmountParams
		if p.Delta, err = paramDecimal(raw, "delta"); err != nil {
			return nil, err
		}
		params = p
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", types.ErrInvalidActionParameters, actionType)
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// paramString reads an optional text parameter. Missing keys yield "".
func paramString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	s, err := coerceText(v)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", types.ErrInvalidActionParameters, key, err)
	}
	return s.(string), nil
}

func paramBool(raw map[string]any, key string) (bool, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("%w: %s is not a boolean", types.ErrInvalidActionParameters, key)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("%w: %s is not a boolean", types.ErrInvalidActionParameters, key)
	}
}

// paramInt reads a whole number. Missing keys yield 0 for Validate to reject.
func paramInt(raw map[string]any, key string) (int, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, nil
	}
	f, err := coerceNumeric(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", types.ErrInvalidActionParameters, key, err)
	}
	n := f.(float64)
	if n != float64(int(n)) {
		return 0, fmt.Errorf("%w: %s must be a whole number", types.ErrInvalidActionParameters, key)
	}
	return int(n), nil
}

func paramCodes(raw map[string]any, key string) ([]string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, err := coerceList(v, KindText)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidActionParameters, key, err)
	}
	out := make([]string, 0, len(list))
	for _, c := range list {
		if s := c.(string); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// paramDecimal reads a money amount. Missing keys yield zero for Validate
// to reject.
func paramDecimal(raw map[string]any, key string) (decimal.Decimal, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return decimal.Zero, nil
	}
	switch d := v.(type) {
	case decimal.Decimal:
		return d, nil
	case float64:
		return decimal.NewFromFloat(d), nil
	case int:
		return decimal.NewFromInt(int64(d)), nil
	case int64:
		return decimal.NewFromInt(d), nil
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(d))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s is not numeric", types.ErrInvalidActionParameters, key)
		}
		return parsed, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s is not numeric", types.ErrInvalidActionParameters, key)
	}
}

// canonicalCodes returns a sorted, upper-cased, comma-joined code list.
func canonicalCodes(codes []string) string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = strings.ToUpper(c)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
