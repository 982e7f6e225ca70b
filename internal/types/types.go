// Package types provides domain models shared across claimscrub components.
//
// Zero-engine design: this package only describes records (claims, rules,
// conflicts, test results). Evaluation lives in internal/rules, persistence in
// internal/core/db. ID utilities in ids.go import uuid; money uses decimal.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleID identifies a rule. Rules created by the repository get UUIDv7 ids;
// imported rule sets may carry human-readable ids such as "NCCI-001".
type RuleID string

// ConflictID represents a UUIDv5 conflict identifier derived from its rule pair.
type ConflictID string

// ScrubID represents a UUIDv7 scrub report identifier.
type ScrubID string

// RuleType classifies the policy source of a rule.
type RuleType string

const (
	RuleTypeNCCI        RuleType = "NCCI"
	RuleTypeLCD         RuleType = "LCD"
	RuleTypeNCD         RuleType = "NCD"
	RuleTypePayerPolicy RuleType = "payer_policy"
	RuleTypeModifier    RuleType = "modifier"
	RuleTypeUnit        RuleType = "unit"
	RuleTypePriorAuth   RuleType = "prior_auth"
	RuleTypeBundling    RuleType = "bundling"
	RuleTypeCoverage    RuleType = "coverage"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeNCCI, RuleTypeLCD, RuleTypeNCD, RuleTypePayerPolicy, RuleTypeModifier,
		RuleTypeUnit, RuleTypePriorAuth, RuleTypeBundling, RuleTypeCoverage:
		return true
	}
	return false
}

// Scope limits which claims a rule applies to.
type Scope string

const (
	ScopeGlobal    Scope = "global"
	ScopePayer     Scope = "payer"
	ScopePlan      Scope = "plan"
	ScopeSpecialty Scope = "specialty"
)

// Breadth ranks scopes from narrowest (0) to widest (3).
func (s Scope) Breadth() int {
	switch s {
	case ScopeGlobal:
		return 3
	case ScopePayer:
		return 2
	case ScopePlan:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopePayer, ScopePlan, ScopeSpecialty:
		return true
	}
	return false
}

// Status is the lifecycle state of a rule.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusTesting  Status = "testing"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Field names a claim attribute a condition can inspect.
type Field string

const (
	FieldDiagnosis Field = "diagnosis"
	FieldProcedure Field = "procedure"
	FieldModifier  Field = "modifier"
	FieldPOS       Field = "pos"
	FieldPayer     Field = "payer"
	FieldPlan      Field = "plan"
	FieldProvider  Field = "provider"
	FieldUnits     Field = "units"
	FieldAge       Field = "age"
	FieldGender    Field = "gender"
	FieldDate      Field = "date"
)

// Operator names a condition comparison.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpBetween     Operator = "between"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
)

// LogicalOperator joins a condition with the result of the conditions before it.
type LogicalOperator string

const (
	LogicalNone LogicalOperator = ""
	LogicalAnd  LogicalOperator = "AND"
	LogicalOr   LogicalOperator = "OR"
)

// ActionType names what a matched rule asks the caller to do.
type ActionType string

const (
	ActionRequireModifier ActionType = "require_modifier"
	ActionDenyClaim       ActionType = "deny_claim"
	ActionWarn            ActionType = "warn"
	ActionRequireAuth     ActionType = "require_auth"
	ActionLimitUnits      ActionType = "limit_units"
	ActionBundleCodes     ActionType = "bundle_codes"
	ActionUnbundleCodes   ActionType = "unbundle_codes"
	ActionAdjustAmount    ActionType = "adjust_amount"
)

// Severity orders action and conflict importance.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank returns 0 (info) through 3 (critical), or -1 for unknown severities.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// SeverityFromRank clamps rank into [info, critical].
func SeverityFromRank(rank int) Severity {
	switch {
	case rank <= 0:
		return SeverityInfo
	case rank == 1:
		return SeverityWarning
	case rank == 2:
		return SeverityError
	default:
		return SeverityCritical
	}
}

// Range is the {min,max} value of a between condition.
type Range struct {
	Min any `json:"min" yaml:"min"`
	Max any `json:"max" yaml:"max"`
}

// Condition is one (field, operator, value) test in a rule's ordered list.
type Condition struct {
	Field           Field           `json:"field" yaml:"field"`
	Operator        Operator        `json:"operator" yaml:"operator"`
	Value           any             `json:"value,omitempty" yaml:"value,omitempty"`
	LogicalOperator LogicalOperator `json:"logicalOperator,omitempty" yaml:"logicalOperator,omitempty"`
}

// Action is a rule outcome. Parameters stay loosely typed here; internal/rules
// decodes them into per-type parameter structs at compile time.
type Action struct {
	Type       ActionType     `json:"type" yaml:"type"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Message    string         `json:"message" yaml:"message"`
	Severity   Severity       `json:"severity" yaml:"severity"`
}

// Rule is a complete scrubbing rule as stored in the rule repository.
type Rule struct {
	ID             RuleID      `json:"id" yaml:"id"`
	Name           string      `json:"name" yaml:"name"`
	Description    string      `json:"description,omitempty" yaml:"description,omitempty"`
	Type           RuleType    `json:"type" yaml:"type"`
	Scope          Scope       `json:"scope" yaml:"scope"`
	ScopeID        string      `json:"scopeId,omitempty" yaml:"scopeId,omitempty"`
	Status         Status      `json:"status" yaml:"status"`
	Priority       int         `json:"priority" yaml:"priority"`
	Version        int         `json:"version" yaml:"version"`
	Conditions     []Condition `json:"conditions" yaml:"conditions"`
	Actions        []Action    `json:"actions" yaml:"actions"`
	EffectiveDate  time.Time   `json:"effectiveDate" yaml:"effectiveDate"`
	ExpirationDate *time.Time  `json:"expirationDate,omitempty" yaml:"expirationDate,omitempty"`
	CreatedBy      string      `json:"createdBy,omitempty" yaml:"createdBy,omitempty"`
	CreatedAt      time.Time   `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	ModifiedBy     string      `json:"modifiedBy,omitempty" yaml:"modifiedBy,omitempty"`
	ModifiedAt     time.Time   `json:"modifiedAt,omitempty" yaml:"modifiedAt,omitempty"`
	Citations      []string    `json:"citations,omitempty" yaml:"citations,omitempty"`
	Tags           []string    `json:"tags,omitempty" yaml:"tags,omitempty"`
	TestResult     *TestResult `json:"testResult,omitempty" yaml:"testResult,omitempty"`
	ConflictsWith  []RuleID    `json:"conflictsWith,omitempty" yaml:"conflictsWith,omitempty"` // set by the last conflict run
}

// Claim is the subset of a professional claim the engine inspects.
// Units and PatientAge are pointers so an unset value is distinguishable from zero.
type Claim struct {
	ClaimID        string          `json:"claimId" yaml:"claimId"`
	DiagnosisCodes []string        `json:"diagnosisCodes,omitempty" yaml:"diagnosisCodes,omitempty"`
	ProcedureCodes []string        `json:"procedureCodes,omitempty" yaml:"procedureCodes,omitempty"`
	Modifiers      []string        `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
	PlaceOfService string          `json:"placeOfService,omitempty" yaml:"placeOfService,omitempty"`
	PayerID        string          `json:"payerId,omitempty" yaml:"payerId,omitempty"`
	PlanID         string          `json:"planId,omitempty" yaml:"planId,omitempty"`
	ProviderID     string          `json:"providerId,omitempty" yaml:"providerId,omitempty"`
	Specialty      string          `json:"specialty,omitempty" yaml:"specialty,omitempty"`
	Units          *int            `json:"units,omitempty" yaml:"units,omitempty"`
	PatientAge     *int            `json:"patientAge,omitempty" yaml:"patientAge,omitempty"`
	PatientGender  string          `json:"patientGender,omitempty" yaml:"patientGender,omitempty"`
	DateOfService  time.Time       `json:"dateOfService" yaml:"dateOfService"`
	ChargeAmount   decimal.Decimal `json:"chargeAmount" yaml:"chargeAmount"`
}

// ConflictType classifies how two rules interfere.
type ConflictType string

const (
	ConflictPrecedence    ConflictType = "precedence"
	ConflictContradiction ConflictType = "contradiction"
	ConflictOverlap       ConflictType = "overlap"
)

// Conflict is an advisory finding about two rules. Rule1 < Rule2 always.
type Conflict struct {
	ID             ConflictID   `json:"id" db:"conflict_id"`
	Rule1          RuleID       `json:"rule1" db:"rule1_id"`
	Rule2          RuleID       `json:"rule2" db:"rule2_id"`
	Type           ConflictType `json:"type" db:"conflict_type"`
	Severity       Severity     `json:"severity" db:"severity"`
	Score          int          `json:"score" db:"score"`
	Description    string       `json:"description" db:"description"`
	Recommendation string       `json:"recommendation" db:"recommendation"`
	Resolved       bool         `json:"resolved" db:"resolved"`
	DetectedAt     time.Time    `json:"detectedAt" db:"detected_at"`
}

// TestResult summarizes a replay of sample claims through one rule.
// MatchRate is hits/sampleSize. Accuracy is only set when samples carried
// ground-truth labels for the rule.
type TestResult struct {
	RuleID         RuleID        `json:"ruleId"`
	SampleSize     int           `json:"sampleSize"`
	Hits           int           `json:"hits"`
	Misses         int           `json:"misses"`
	Errors         int           `json:"errors"`
	MatchRate      float64       `json:"matchRate"`
	Labeled        int           `json:"labeled"`
	Accuracy       *float64      `json:"accuracy,omitempty"`
	TruePositives  int           `json:"truePositives"`
	TrueNegatives  int           `json:"trueNegatives"`
	FalsePositives int           `json:"falsePositives"`
	FalseNegatives int           `json:"falseNegatives"`
	ExecutionTime  time.Duration `json:"executionTime"`
	RanAt          time.Time     `json:"ranAt"`
}

// SampleClaim is a historical claim replayed by the test harness.
// Expected maps rule ids to whether the rule should have fired.
type SampleClaim struct {
	Claim    Claim           `json:"claim" yaml:"claim"`
	Expected map[RuleID]bool `json:"expected,omitempty" yaml:"expected,omitempty"`
}

// Resource limits enforced at compile and evaluation time.
const (
	// MinPriority and MaxPriority bound Rule.Priority.
	MinPriority = 1
	MaxPriority = 100

	// MaxConditions caps a rule's condition list.
	MaxConditions = 64

	// MaxActions caps a rule's action list.
	MaxActions = 16

	// MaxInOperatorValues limits in/not_in list size.
	MaxInOperatorValues = 256
)
