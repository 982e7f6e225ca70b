package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the scrub service with typed messages.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	in, err := encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return err
	}
	return decode(out, resp)
}

func (c *Client) ScrubClaims(ctx context.Context, req ScrubClaimsRequest, opts ...grpc.CallOption) (*ScrubClaimsResponse, error) {
	resp := new(ScrubClaimsResponse)
	return resp, c.invoke(ctx, MethodScrubClaims, req, resp, opts...)
}

func (c *Client) ListScrubReports(ctx context.Context, req ListScrubReportsRequest, opts ...grpc.CallOption) (*ListScrubReportsResponse, error) {
	resp := new(ListScrubReportsResponse)
	return resp, c.invoke(ctx, MethodListScrubReports, req, resp, opts...)
}

func (c *Client) ListRules(ctx context.Context, req ListRulesRequest, opts ...grpc.CallOption) (*ListRulesResponse, error) {
	resp := new(ListRulesResponse)
	return resp, c.invoke(ctx, MethodListRules, req, resp, opts...)
}

func (c *Client) TransitionRule(ctx context.Context, req TransitionRuleRequest, opts ...grpc.CallOption) (*TransitionRuleResponse, error) {
	resp := new(TransitionRuleResponse)
	return resp, c.invoke(ctx, MethodTransitionRule, req, resp, opts...)
}

func (c *Client) DetectConflicts(ctx context.Context, req DetectConflictsRequest, opts ...grpc.CallOption) (*DetectConflictsResponse, error) {
	resp := new(DetectConflictsResponse)
	return resp, c.invoke(ctx, MethodDetectConflicts, req, resp, opts...)
}

func (c *Client) ListConflicts(ctx context.Context, req ListConflictsRequest, opts ...grpc.CallOption) (*ListConflictsResponse, error) {
	resp := new(ListConflictsResponse)
	return resp, c.invoke(ctx, MethodListConflicts, req, resp, opts...)
}

func (c *Client) ResolveConflict(ctx context.Context, req ResolveConflictRequest, opts ...grpc.CallOption) (*ResolveConflictResponse, error) {
	resp := new(ResolveConflictResponse)
	return resp, c.invoke(ctx, MethodResolveConflict, req, resp, opts...)
}

func (c *Client) RunTest(ctx context.Context, req RunTestRequest, opts ...grpc.CallOption) (*RunTestResponse, error) {
	resp := new(RunTestResponse)
	return resp, c.invoke(ctx, MethodRunTest, req, resp, opts...)
}
