package errutil

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s CoreStatus) GRPCCode() codes.Code {
	switch s {
	case StatusBadRequest:
		return codes.InvalidArgument
	case StatusNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// ToGRPCError turns err into a status error. Errors that already carry a
// status pass through untouched.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var be BaseError
	if errors.As(err, &be) {
		return status.Error(be.Code.GRPCCode(), be.messageWithErr())
	}
	return status.Error(codes.Internal, err.Error())
}

// UnaryServerInterceptor normalises handler errors with ToGRPCError.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		return resp, ToGRPCError(err)
	}
}
