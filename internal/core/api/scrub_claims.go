package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/claimscrub/internal/rules"
	"github.com/solatis/claimscrub/internal/types"
)

// ScrubClaims scrubs a batch of claims and persists one report per claim.
// Per-claim persistence enables partial batch success.
// JSONL output is best-effort audit trail, not authoritative.
func (s *ScrubService) ScrubClaims(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}

	var req ScrubClaimsRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}

	// Reject batches exceeding max size
	// Prevents request timeouts and memory exhaustion
	if len(req.Claims) == 0 || len(req.Claims) > s.cfg.MaxBatchSize {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("batch must hold 1 to %d claims", s.cfg.MaxBatchSize))
	}

	results := make([]ClaimResult, len(req.Claims))
	claims := make([]types.Claim, 0, len(req.Claims))
	index := make([]int, 0, len(req.Claims))
	for i, raw := range req.Claims {
		var claim types.Claim
		if err := json.Unmarshal(raw, &claim); err != nil {
			results[i] = ClaimResult{Status: ClaimRejected, Error: err.Error()}
			continue
		}
		if claim.ClaimID == "" {
			results[i] = ClaimResult{Status: ClaimRejected, Error: "claimId required"}
			continue
		}
		claims = append(claims, claim)
		index = append(index, i)
	}

	var asOf time.Time
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	scrubCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	reports, err := s.engine.ScrubBatch(scrubCtx, claims, asOf)
	if err != nil {
		return nil, statusError(err)
	}

	// Determine JSONL filename at request start
	// All reports in batch written to same file even if processing spans midnight
	jsonlFilename := filepath.Join(s.cfg.DataDir, "reports", time.Now().UTC().Format("2006-01-02.jsonl"))

	resp := ScrubClaimsResponse{Results: results}
	for j := range reports {
		report := &reports[j]
		result := s.persistReport(ctx, tenantID, report, jsonlFilename)
		results[index[j]] = result
		s.metrics.ObserveScrub(report)

		if result.Status == ClaimAccepted {
			resp.AcceptedCount++
		}
		if report.Denied {
			resp.DeniedCount++
		}
	}

	return encodeResponse(resp)
}

// persistReport stores a report and appends it to the daily JSONL file.
// The database is the source of truth; the JSONL file may hold reports
// whose insert failed.
func (s *ScrubService) persistReport(ctx context.Context, tenantID string, report *rules.ScrubReport, jsonlFilename string) ClaimResult {
	result := ClaimResult{ClaimID: report.ClaimID, Status: ClaimAccepted, Report: report}

	if err := s.store.SaveScrubReport(ctx, tenantID, report); err != nil {
		s.logger.Error("persist scrub report", "claim_id", report.ClaimID, "error", err)
		result.Status = ClaimError
		result.Error = fmt.Sprintf("database error: %v", err)
	}

	jsonlMutex := s.getJSONLMutex(jsonlFilename)
	jsonlMutex.Lock()
	defer jsonlMutex.Unlock()
	f, err := os.OpenFile(jsonlFilename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		defer f.Close()
		_ = json.NewEncoder(f).Encode(report)
	}

	return result
}

// ListScrubReports returns the stored reports for one claim, newest first.
func (s *ScrubService) ListScrubReports(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := tenantFrom(ctx); err != nil {
		return nil, err
	}
	var req ListScrubReportsRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if req.ClaimID == "" {
		return nil, status.Error(codes.InvalidArgument, "claimId required")
	}

	reports, err := s.store.ListScrubReports(ctx, req.ClaimID)
	if err != nil {
		return nil, statusError(err)
	}
	return encodeResponse(ListScrubReportsResponse{Reports: reports})
}
