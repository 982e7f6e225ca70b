package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/solatis/claimscrub/internal/core/auth"
	"github.com/solatis/claimscrub/internal/core/config"
	"github.com/solatis/claimscrub/internal/core/db"
	"github.com/solatis/claimscrub/internal/core/metrics"
	"github.com/solatis/claimscrub/internal/rules"
	"github.com/solatis/claimscrub/internal/ruleset"
	"github.com/solatis/claimscrub/internal/types"
)

const testSecretID = "0190a6a4c2f07a3e9d1b4c5d6e7f8a9b"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type harness struct {
	client *Client
	ctx    context.Context // carries the API key
	store  *db.Store
	cfg    *config.ScrubAPIConfig
}

// setup seeds a temp sqlite store with testdata/rules.yaml and serves the
// scrub service over bufconn behind the auth interceptor.
func setup(t *testing.T, tweak func(*config.ScrubAPIConfig)) *harness {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "api.db") + "?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.MigrateUp(ctx, conn); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	q, err := db.LoadQueries(conn)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v", err)
	}
	store := db.NewStore(q)

	seed, err := ruleset.LoadRules("../../ruleset/testdata/rules.yaml")
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	for i := range seed {
		if err := store.SaveRule(ctx, &seed[i]); err != nil {
			t.Fatalf("SaveRule(%s) error = %v", seed[i].ID, err)
		}
	}

	cfg := config.DefaultScrubAPIConfig()
	cfg.DataDir = t.TempDir()
	if tweak != nil {
		tweak(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := rules.NewEngine(
		rules.WithLogger(logger),
		rules.WithStopOnDeny(cfg.StopOnDeny),
		rules.WithWorkers(cfg.Workers),
		rules.WithDetectorOptions(rules.DetectorOptions{Budget: cfg.ConflictBudget}),
		rules.WithHarnessOptions(rules.HarnessOptions{MaxSampleSize: cfg.MaxSampleSize}),
	)
	m := metrics.New()
	svc, err := NewScrubService(engine, store, cfg, m, logger)
	if err != nil {
		t.Fatalf("NewScrubService() error = %v", err)
	}
	if err := svc.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	authenticator := auth.NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q)
	key, hash, err := auth.GenerateAPIKey(testSecretID, testSecret)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}
	if _, err := store.CreateAPIKey(ctx, "tenant-a", "api test", hash); err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(m.UnaryInterceptor(), authenticator.UnaryInterceptor()))
	RegisterScrubServiceServer(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { cc.Close() })

	return &harness{
		client: NewClient(cc),
		ctx:    metadata.AppendToOutgoingContext(ctx, "x-api-key", key),
		store:  store,
		cfg:    cfg,
	}
}

func wantCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if got := status.Code(err); got != want {
		t.Fatalf("status = %v (%v), want %v", got, err, want)
	}
}

func TestScrubClaims(t *testing.T) {
	h := setup(t, nil)

	resp, err := h.client.ScrubClaims(h.ctx, ScrubClaimsRequest{Claims: []json.RawMessage{
		json.RawMessage(`{"claimId":"CLM-1001","procedureCodes":["99213","93000"],"payerId":"aetna","dateOfService":"2024-06-15","chargeAmount":"210.00"}`),
		json.RawMessage(`{"claimId":5}`),
		json.RawMessage(`{"payerId":"aetna"}`),
	}})
	if err != nil {
		t.Fatalf("ScrubClaims() error = %v", err)
	}

	if resp.AcceptedCount != 1 || resp.DeniedCount != 1 || len(resp.Results) != 3 {
		t.Fatalf("resp = %+v", resp)
	}
	first := resp.Results[0]
	if first.Status != ClaimAccepted || first.Report == nil || first.Report.DeniedBy != "NCCI-001" {
		t.Errorf("results[0] = %+v", first)
	}
	outcomes := first.Report.Outcomes()
	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if p, ok := outcomes[0].Params.(rules.DenyClaimParams); !ok || p.ReasonCode != "CO-97" {
		t.Errorf("params = %#v", outcomes[0].Params)
	}
	if resp.Results[1].Status != ClaimRejected || resp.Results[1].Error == "" {
		t.Errorf("results[1] = %+v", resp.Results[1])
	}
	if resp.Results[2].Status != ClaimRejected || resp.Results[2].Error != "claimId required" {
		t.Errorf("results[2] = %+v", resp.Results[2])
	}

	stored, err := h.client.ListScrubReports(h.ctx, ListScrubReportsRequest{ClaimID: "CLM-1001"})
	if err != nil {
		t.Fatalf("ListScrubReports() error = %v", err)
	}
	if len(stored.Reports) != 1 || stored.Reports[0].ScrubID != first.Report.ScrubID {
		t.Errorf("stored reports = %+v", stored.Reports)
	}

	files, _ := filepath.Glob(filepath.Join(h.cfg.DataDir, "reports", "*.jsonl"))
	if len(files) != 1 {
		t.Fatalf("jsonl files = %v", files)
	}
	f, err := os.Open(files[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	lines := 0
	for scanner := bufio.NewScanner(f); scanner.Scan(); {
		lines++
	}
	if lines != 1 {
		t.Errorf("jsonl lines = %d, want 1", lines)
	}
}

func TestScrubClaims_BatchLimits(t *testing.T) {
	h := setup(t, func(cfg *config.ScrubAPIConfig) { cfg.MaxBatchSize = 1 })

	_, err := h.client.ScrubClaims(h.ctx, ScrubClaimsRequest{})
	wantCode(t, err, codes.InvalidArgument)

	_, err = h.client.ScrubClaims(h.ctx, ScrubClaimsRequest{Claims: []json.RawMessage{
		json.RawMessage(`{"claimId":"A"}`), json.RawMessage(`{"claimId":"B"}`),
	}})
	wantCode(t, err, codes.InvalidArgument)
}

func TestAuthRequired(t *testing.T) {
	h := setup(t, nil)

	_, err := h.client.ListRules(context.Background(), ListRulesRequest{})
	wantCode(t, err, codes.Unauthenticated)

	bad := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "cs-v1-nope")
	_, err = h.client.ListRules(bad, ListRulesRequest{})
	wantCode(t, err, codes.Unauthenticated)
}

func TestListRules(t *testing.T) {
	h := setup(t, nil)

	all, err := h.client.ListRules(h.ctx, ListRulesRequest{})
	if err != nil {
		t.Fatalf("ListRules() error = %v", err)
	}
	if len(all.Rules) != 5 || all.ETag == "" || all.NotModified {
		t.Fatalf("ListRules() = %d rules, etag %q", len(all.Rules), all.ETag)
	}

	cached, err := h.client.ListRules(h.ctx, ListRulesRequest{IfNoneMatch: all.ETag})
	if err != nil {
		t.Fatalf("ListRules(ifNoneMatch) error = %v", err)
	}
	if !cached.NotModified || len(cached.Rules) != 0 || cached.ETag != all.ETag {
		t.Errorf("cached = %+v", cached)
	}

	drafts, err := h.client.ListRules(h.ctx, ListRulesRequest{Status: types.StatusDraft})
	if err != nil {
		t.Fatalf("ListRules(draft) error = %v", err)
	}
	if len(drafts.Rules) != 1 || drafts.Rules[0].ID != "UNIT-97110" {
		t.Errorf("drafts = %+v", drafts.Rules)
	}
}

func TestRunTestThenPromote(t *testing.T) {
	h := setup(t, nil)
	samples, err := ruleset.LoadSamples("../../ruleset/testdata/samples.jsonl")
	if err != nil {
		t.Fatalf("LoadSamples() error = %v", err)
	}

	// A draft cannot enter testing before it has been tested.
	_, err = h.client.TransitionRule(h.ctx, TransitionRuleRequest{RuleID: "UNIT-97110", Status: types.StatusTesting})
	wantCode(t, err, codes.FailedPrecondition)

	tested, err := h.client.RunTest(h.ctx, RunTestRequest{RuleIDs: []types.RuleID{"UNIT-97110"}, Samples: samples})
	if err != nil {
		t.Fatalf("RunTest() error = %v", err)
	}
	if len(tested.Results) != 1 {
		t.Fatalf("results = %+v", tested.Results)
	}
	res := tested.Results[0]
	if res.SampleSize != 4 || res.Hits != 1 || res.Labeled != 1 || res.Accuracy == nil || *res.Accuracy != 1 {
		t.Errorf("result = %+v", res)
	}

	history, err := h.store.ListTestResults(context.Background(), "UNIT-97110")
	if err != nil || len(history) != 1 {
		t.Fatalf("ListTestResults() = %v, %v", history, err)
	}

	for _, to := range []types.Status{types.StatusTesting, types.StatusActive} {
		moved, err := h.client.TransitionRule(h.ctx, TransitionRuleRequest{RuleID: "UNIT-97110", Status: to, Actor: "qa"})
		if err != nil {
			t.Fatalf("TransitionRule(%s) error = %v", to, err)
		}
		if moved.Rule.Status != to || moved.Rule.ModifiedBy != "qa" {
			t.Errorf("rule = %+v", moved.Rule)
		}
	}

	active, err := h.client.ListRules(h.ctx, ListRulesRequest{Status: types.StatusActive})
	if err != nil {
		t.Fatalf("ListRules(active) error = %v", err)
	}
	if len(active.Rules) != 5 {
		t.Errorf("active rules = %d, want 5", len(active.Rules))
	}

	// The reloaded engine now applies the promoted rule.
	scrub, err := h.client.ScrubClaims(h.ctx, ScrubClaimsRequest{Claims: []json.RawMessage{
		json.RawMessage(`{"claimId":"PT-1","procedureCodes":["97110"],"units":6,"payerId":"aetna","dateOfService":"2024-06-15"}`),
	}})
	if err != nil {
		t.Fatalf("ScrubClaims() error = %v", err)
	}
	report := scrub.Results[0].Report
	if report == nil || len(report.Outcomes()) != 1 || report.Outcomes()[0].RuleID != "UNIT-97110" {
		t.Errorf("report = %+v", report)
	}
}

func TestTransitionRule_Errors(t *testing.T) {
	h := setup(t, nil)

	tests := []struct {
		name string
		req  TransitionRuleRequest
		want codes.Code
	}{
		{name: "unknown rule", req: TransitionRuleRequest{RuleID: "NOPE-1", Status: types.StatusArchived}, want: codes.NotFound},
		{name: "disallowed", req: TransitionRuleRequest{RuleID: "NCCI-001", Status: types.StatusDraft}, want: codes.FailedPrecondition},
		{name: "missing status", req: TransitionRuleRequest{RuleID: "NCCI-001"}, want: codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.client.TransitionRule(h.ctx, tt.req)
			wantCode(t, err, tt.want)
		})
	}
}

func TestRunTest_Errors(t *testing.T) {
	h := setup(t, func(cfg *config.ScrubAPIConfig) { cfg.MaxSampleSize = 1 })
	two := []types.SampleClaim{{Claim: types.Claim{ClaimID: "A"}}, {Claim: types.Claim{ClaimID: "B"}}}

	_, err := h.client.RunTest(h.ctx, RunTestRequest{RuleIDs: []types.RuleID{"NOPE-1"}})
	wantCode(t, err, codes.NotFound)

	_, err = h.client.RunTest(h.ctx, RunTestRequest{RuleIDs: []types.RuleID{"NCCI-001"}, Samples: two})
	wantCode(t, err, codes.InvalidArgument)

	_, err = h.client.RunTest(h.ctx, RunTestRequest{})
	wantCode(t, err, codes.InvalidArgument)
}

func TestDetectAndResolveConflicts(t *testing.T) {
	h := setup(t, nil)

	detected, err := h.client.DetectConflicts(h.ctx, DetectConflictsRequest{})
	if err != nil {
		t.Fatalf("DetectConflicts() error = %v", err)
	}
	if detected.Truncated || !detected.Persisted {
		t.Fatalf("detected = %+v", detected)
	}

	var target types.Conflict
	for _, c := range detected.Conflicts {
		if c.Type == types.ConflictContradiction && c.Rule1 == "BCBS-MOD-25" && c.Rule2 == "BCBS-MOD-25-LEGACY" {
			target = c
		}
	}
	if target.ID == "" {
		t.Fatalf("modifier contradiction not reported: %+v", detected.Conflicts)
	}
	linked, err := h.store.GetRule(h.ctx, "BCBS-MOD-25")
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if !slices.Contains(linked.ConflictsWith, "BCBS-MOD-25-LEGACY") {
		t.Errorf("BCBS-MOD-25 ConflictsWith = %v, want BCBS-MOD-25-LEGACY", linked.ConflictsWith)
	}

	if _, err := h.client.ResolveConflict(h.ctx, ResolveConflictRequest{ConflictID: target.ID}); err != nil {
		t.Fatalf("ResolveConflict() error = %v", err)
	}
	_, err = h.client.ResolveConflict(h.ctx, ResolveConflictRequest{ConflictID: "missing"})
	wantCode(t, err, codes.NotFound)

	open, err := h.client.ListConflicts(h.ctx, ListConflictsRequest{})
	if err != nil {
		t.Fatalf("ListConflicts() error = %v", err)
	}
	for _, c := range open.Conflicts {
		if c.ID == target.ID {
			t.Errorf("resolved conflict still listed as open")
		}
	}

	// A later run reports the same pair but keeps the resolution.
	again, err := h.client.DetectConflicts(h.ctx, DetectConflictsRequest{})
	if err != nil {
		t.Fatalf("DetectConflicts() error = %v", err)
	}
	found := false
	for _, c := range again.Conflicts {
		if c.ID == target.ID {
			found = true
			if !c.Resolved {
				t.Errorf("resolution lost on re-detection")
			}
		}
	}
	if !found {
		t.Errorf("conflict %s missing from re-detection", target.ID)
	}
}

func TestDetectConflicts_Truncated(t *testing.T) {
	h := setup(t, func(cfg *config.ScrubAPIConfig) { cfg.ConflictBudget = 1 })

	detected, err := h.client.DetectConflicts(h.ctx, DetectConflictsRequest{})
	if err != nil {
		t.Fatalf("DetectConflicts() error = %v", err)
	}
	if !detected.Truncated || detected.Persisted || detected.Error == "" {
		t.Errorf("detected = %+v", detected)
	}

	all, err := h.client.ListConflicts(h.ctx, ListConflictsRequest{IncludeResolved: true})
	if err != nil {
		t.Fatalf("ListConflicts() error = %v", err)
	}
	if len(all.Conflicts) != 0 {
		t.Errorf("truncated run persisted %d conflicts", len(all.Conflicts))
	}
}
