package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/claimscrub/internal/core/auth"
	"github.com/solatis/claimscrub/internal/types"
)

// Auth errors are mapped in the auth package interceptor.
// Domain errors map to their codes below; anything else came from the
// store and maps to UNAVAILABLE.

// statusError converts a handler error into a gRPC status error.
func statusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, types.ErrConflictDetectionTimeout):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, types.ErrRuleNotFound), errors.Is(err, types.ErrConflictNotFound):
		return codes.NotFound
	case errors.Is(err, types.ErrInvalidTransition):
		return codes.FailedPrecondition
	case errors.Is(err, types.ErrVersionConflict):
		return codes.Aborted
	case errors.Is(err, types.ErrRuleValidation),
		errors.Is(err, types.ErrInvalidRuleID),
		errors.Is(err, types.ErrSampleTooLarge),
		errors.Is(err, types.ErrTypeMismatch),
		errors.Is(err, types.ErrUnsupportedOperator),
		errors.Is(err, types.ErrInvalidRange),
		errors.Is(err, types.ErrInvalidActionParameters),
		errors.Is(err, types.ErrTooManyInValues):
		return codes.InvalidArgument
	default:
		return codes.Unavailable
	}
}

// tenantFrom returns the authenticated tenant or an Internal status when
// the auth interceptor did not run.
func tenantFrom(ctx context.Context) (string, error) {
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		return "", status.Error(codes.Internal, errTenantMissing.Error())
	}
	return tenantID, nil
}
