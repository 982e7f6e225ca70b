package api

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/claimscrub/internal/rules"
	"github.com/solatis/claimscrub/internal/types"
)

// ListRules returns stored rules, optionally filtered by status.
// ETag-based caching minimizes bandwidth when rules are unchanged.
func (s *ScrubService) ListRules(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := tenantFrom(ctx); err != nil {
		return nil, err
	}
	var req ListRulesRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}

	var (
		list []types.Rule
		err  error
	)
	if req.Status != "" {
		list, err = s.store.ListRulesByStatus(ctx, req.Status)
	} else {
		list, err = s.store.ListRules(ctx)
	}
	if err != nil {
		return nil, statusError(err)
	}

	// ETag is content-addressable: same rules always produce same ETag
	etag := rules.ComputeETag(list)
	if req.IfNoneMatch != "" && req.IfNoneMatch == etag {
		return encodeResponse(ListRulesResponse{Rules: []types.Rule{}, ETag: etag, NotModified: true})
	}
	if list == nil {
		list = []types.Rule{}
	}
	return encodeResponse(ListRulesResponse{Rules: list, ETag: etag})
}
