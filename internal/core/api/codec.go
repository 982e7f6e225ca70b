package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// decode converts a Struct payload into its typed message via JSON.
func decode(in *structpb.Struct, dst any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// encode converts a typed message into a Struct payload via JSON.
func encode(src any) (*structpb.Struct, error) {
	data, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("unmarshal struct: %w", err)
	}
	return out, nil
}

// decodeRequest is decode for handlers: malformed input is InvalidArgument.
func decodeRequest(in *structpb.Struct, dst any) error {
	if err := decode(in, dst); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

// encodeResponse is encode for handlers: failures are Internal.
func encodeResponse(src any) (*structpb.Struct, error) {
	out, err := encode(src)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
