package api

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/claimscrub/internal/types"
)

// DetectConflicts runs the detector over the loaded rules. A complete run
// replaces the stored conflicts; a truncated run is returned as a partial
// report and leaves the store untouched.
func (s *ScrubService) DetectConflicts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := tenantFrom(ctx); err != nil {
		return nil, err
	}
	var req DetectConflictsRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.ConflictTimeout)
	report := s.engine.DetectConflicts(runCtx)
	cancel()
	s.metrics.ObserveConflicts(&report)

	resp := DetectConflictsResponse{ConflictReport: report}
	if !report.Truncated {
		stored, err := s.store.ReplaceConflicts(ctx, report.Conflicts)
		if err != nil {
			return nil, statusError(err)
		}
		resp.Conflicts = stored
		resp.Persisted = true
	}
	if resp.Conflicts == nil {
		resp.Conflicts = []types.Conflict{}
	}
	return encodeResponse(resp)
}

// ListConflicts returns stored conflicts, unresolved only unless asked.
func (s *ScrubService) ListConflicts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := tenantFrom(ctx); err != nil {
		return nil, err
	}
	var req ListConflictsRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}

	conflicts, err := s.store.ListConflicts(ctx, req.IncludeResolved)
	if err != nil {
		return nil, statusError(err)
	}
	if conflicts == nil {
		conflicts = []types.Conflict{}
	}
	return encodeResponse(ListConflictsResponse{Conflicts: conflicts})
}

// ResolveConflict marks a stored conflict resolved. The flag survives later
// detection runs that report the same rule pair.
func (s *ScrubService) ResolveConflict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := tenantFrom(ctx); err != nil {
		return nil, err
	}
	var req ResolveConflictRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if req.ConflictID == "" {
		return nil, status.Error(codes.InvalidArgument, "conflictId required")
	}

	if err := s.store.ResolveConflict(ctx, req.ConflictID); err != nil {
		return nil, statusError(err)
	}
	return encodeResponse(ResolveConflictResponse{ConflictID: req.ConflictID, Resolved: true})
}
