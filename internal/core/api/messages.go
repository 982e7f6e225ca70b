package api

import (
	"encoding/json"
	"time"

	"github.com/solatis/claimscrub/internal/rules"
	"github.com/solatis/claimscrub/internal/types"
)

// ClaimStatus is the per-claim outcome of a ScrubClaims batch.
type ClaimStatus string

const (
	ClaimAccepted ClaimStatus = "accepted" // scrubbed and persisted
	ClaimRejected ClaimStatus = "rejected" // malformed claim
	ClaimError    ClaimStatus = "error"    // scrubbed but not persisted
)

// ScrubClaimsRequest carries a batch of claims. Claims are decoded one by
// one so a malformed claim rejects only itself.
type ScrubClaimsRequest struct {
	Claims []json.RawMessage `json:"claims"`
	AsOf   *time.Time        `json:"asOf,omitempty"`
}

// ClaimResult reports what happened to one claim of a batch.
type ClaimResult struct {
	ClaimID string             `json:"claimId"`
	Status  ClaimStatus        `json:"status"`
	Error   string             `json:"error,omitempty"`
	Report  *rules.ScrubReport `json:"report,omitempty"`
}

type ScrubClaimsResponse struct {
	AcceptedCount int           `json:"acceptedCount"`
	DeniedCount   int           `json:"deniedCount"`
	Results       []ClaimResult `json:"results"`
}

type ListScrubReportsRequest struct {
	ClaimID string `json:"claimId"`
}

type ListScrubReportsResponse struct {
	Reports []rules.ScrubReport `json:"reports"`
}

// ListRulesRequest filters by status when set. A matching IfNoneMatch
// returns NotModified without the rules.
type ListRulesRequest struct {
	Status      types.Status `json:"status,omitempty"`
	IfNoneMatch string       `json:"ifNoneMatch,omitempty"`
}

type ListRulesResponse struct {
	Rules       []types.Rule `json:"rules"`
	ETag        string       `json:"etag"`
	NotModified bool         `json:"notModified,omitempty"`
}

type TransitionRuleRequest struct {
	RuleID types.RuleID `json:"ruleId"`
	Status types.Status `json:"status"`
	Actor  string       `json:"actor,omitempty"`
}

type TransitionRuleResponse struct {
	Rule types.Rule `json:"rule"`
}

type DetectConflictsRequest struct{}

// DetectConflictsResponse is the detector report. Persisted is false when
// the run was truncated and the stored conflicts were left untouched.
type DetectConflictsResponse struct {
	rules.ConflictReport
	Persisted bool `json:"persisted"`
}

type ListConflictsRequest struct {
	IncludeResolved bool `json:"includeResolved,omitempty"`
}

type ListConflictsResponse struct {
	Conflicts []types.Conflict `json:"conflicts"`
}

type ResolveConflictRequest struct {
	ConflictID types.ConflictID `json:"conflictId"`
}

type ResolveConflictResponse struct {
	ConflictID types.ConflictID `json:"conflictId"`
	Resolved   bool             `json:"resolved"`
}

type RunTestRequest struct {
	RuleIDs []types.RuleID      `json:"ruleIds"`
	Samples []types.SampleClaim `json:"samples"`
}

type RunTestResponse struct {
	Results []types.TestResult `json:"results"`
}
