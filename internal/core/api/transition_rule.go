package api

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/claimscrub/internal/rules"
	"github.com/solatis/claimscrub/internal/types"
)

// TransitionRule moves a rule through its lifecycle and reloads the engine
// so the new status takes effect for the next scrub.
func (s *ScrubService) TransitionRule(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req TransitionRuleRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if req.RuleID == "" || req.Status == "" {
		return nil, status.Error(codes.InvalidArgument, "ruleId and status required")
	}
	actor := req.Actor
	if actor == "" {
		actor = tenantID
	}

	rule, err := s.store.ModifyRule(ctx, req.RuleID, func(r *types.Rule) error {
		return rules.Transition(r, req.Status, actor, time.Now().UTC())
	})
	if err != nil {
		return nil, statusError(err)
	}
	s.logger.Info("rule transitioned", "rule_id", rule.ID, "status", rule.Status, "version", rule.Version, "actor", actor)

	if err := s.Reload(ctx); err != nil {
		return nil, statusError(err)
	}
	return encodeResponse(TransitionRuleResponse{Rule: rule})
}
