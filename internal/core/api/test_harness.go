package api

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// RunTest replays sample claims through the named rules and attaches each
// result to its rule, the precondition for promoting a draft.
func (s *ScrubService) RunTest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := tenantFrom(ctx); err != nil {
		return nil, err
	}
	var req RunTestRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if len(req.RuleIDs) == 0 {
		return nil, status.Error(codes.InvalidArgument, "ruleIds required")
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.TestTimeout)
	defer cancel()
	results, err := s.engine.RunTest(runCtx, req.RuleIDs, req.Samples)
	if err != nil {
		return nil, statusError(err)
	}
	s.metrics.TestRuns.Inc()

	for _, result := range results {
		if err := s.store.AttachTestResult(ctx, result); err != nil {
			return nil, statusError(err)
		}
	}
	return encodeResponse(RunTestResponse{Results: results})
}
