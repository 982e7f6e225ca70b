package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for claimscrub operations.
var (
	// ErrTypeMismatch indicates an operator applied to an incompatible field type.
	ErrTypeMismatch = errors.New("operator not applicable to field type")

	// ErrUnsupportedOperator indicates an unknown field or operator.
	ErrUnsupportedOperator = errors.New("unsupported field or operator")

	// ErrInvalidRange indicates a between condition with malformed bounds.
	ErrInvalidRange = errors.New("invalid range")

	// ErrInvalidActionParameters indicates action parameters missing or malformed.
	ErrInvalidActionParameters = errors.New("invalid action parameters")

	// ErrRuleValidation indicates a rule violates its structural invariants.
	ErrRuleValidation = errors.New("rule validation failed")

	// ErrConflictDetectionTimeout indicates the detector exceeded its budget.
	ErrConflictDetectionTimeout = errors.New("conflict detection budget exceeded")

	// ErrInvalidTransition indicates a disallowed rule status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidRuleID indicates a malformed rule identifier.
	ErrInvalidRuleID = errors.New("invalid rule id")

	// ErrRuleNotFound indicates a rule id is not present.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrTooManyInValues indicates an in/not_in list exceeds MaxInOperatorValues.
	ErrTooManyInValues = errors.New("IN operator has too many values")

	// ErrSampleTooLarge indicates a test run exceeding the configured sample cap.
	ErrSampleTooLarge = errors.New("sample set too large")

	// ErrVersionConflict indicates a rule changed since it was read.
	ErrVersionConflict = errors.New("rule version conflict")

	// ErrConflictNotFound indicates a conflict id is not present.
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrMissingDateOfService indicates a sample claim with no date of service.
	ErrMissingDateOfService = errors.New("claim has no date of service")
)

// EvaluationError ties an evaluation failure to the rule and claim it came from.
type EvaluationError struct {
	RuleID  RuleID
	ClaimID string
	Err     error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("rule %s on claim %s: %v", e.RuleID, e.ClaimID, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
