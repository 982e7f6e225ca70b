package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "claimscrub.v1.ScrubService"

// Method names, usable as grpc.UnaryServerInfo.FullMethod values.
const (
	MethodScrubClaims      = "/" + ServiceName + "/ScrubClaims"
	MethodListScrubReports = "/" + ServiceName + "/ListScrubReports"
	MethodListRules        = "/" + ServiceName + "/ListRules"
	MethodTransitionRule   = "/" + ServiceName + "/TransitionRule"
	MethodDetectConflicts  = "/" + ServiceName + "/DetectConflicts"
	MethodListConflicts    = "/" + ServiceName + "/ListConflicts"
	MethodResolveConflict  = "/" + ServiceName + "/ResolveConflict"
	MethodRunTest          = "/" + ServiceName + "/RunTest"
)

// ScrubServiceServer is the server API for the scrub service. Requests and
// responses are google.protobuf.Struct values holding the JSON form of the
// message types in messages.go.
type ScrubServiceServer interface {
	ScrubClaims(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListScrubReports(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRules(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DetectConflicts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListConflicts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveConflict(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunTest(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ScrubServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts a server method to grpc.MethodHandler, running the
// interceptor chain when one is installed.
func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ScrubServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ScrubServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func methodDesc(fullMethod string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: fullMethod[len(ServiceName)+2:],
		Handler:    unaryHandler(fullMethod, call),
	}
}

// ScrubServiceDesc describes the scrub service for grpc.Server.
var ScrubServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScrubServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc(MethodScrubClaims, ScrubServiceServer.ScrubClaims),
		methodDesc(MethodListScrubReports, ScrubServiceServer.ListScrubReports),
		methodDesc(MethodListRules, ScrubServiceServer.ListRules),
		methodDesc(MethodTransitionRule, ScrubServiceServer.TransitionRule),
		methodDesc(MethodDetectConflicts, ScrubServiceServer.DetectConflicts),
		methodDesc(MethodListConflicts, ScrubServiceServer.ListConflicts),
		methodDesc(MethodResolveConflict, ScrubServiceServer.ResolveConflict),
		methodDesc(MethodRunTest, ScrubServiceServer.RunTest),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "claimscrub/v1/scrub.proto",
}

// RegisterScrubServiceServer registers srv with s.
func RegisterScrubServiceServer(s grpc.ServiceRegistrar, srv ScrubServiceServer) {
	s.RegisterService(&ScrubServiceDesc, srv)
}
