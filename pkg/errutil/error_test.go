package errutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errStore = errors.New("store down")

func TestConstructorsKeepCause(t *testing.T) {
	err := NotFound("job not found", errStore)
	require.ErrorIs(t, err, errStore)

	be := From(fmt.Errorf("load: %w", err))
	require.Equal(t, StatusNotFound, be.Code)
	require.Equal(t, http.StatusNotFound, be.Code.HTTPStatus())
	require.Contains(t, be.Error(), "store down")
}

func TestFromDefaultsToInternal(t *testing.T) {
	be := From(errStore)
	require.Equal(t, StatusInternal, be.Code)
	require.Equal(t, http.StatusInternalServerError, be.Code.HTTPStatus())
}

func TestToGRPCError(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{BadRequest("bad schedule", nil), codes.InvalidArgument},
		{fmt.Errorf("load: %w", NotFound("job not found", errStore)), codes.NotFound},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{context.Canceled, codes.Canceled},
		{status.Error(codes.Unavailable, "draining"), codes.Unavailable},
		{errStore, codes.Internal},
	}
	for _, c := range cases {
		st, ok := status.FromError(ToGRPCError(c.err))
		require.True(t, ok)
		require.Equal(t, c.want, st.Code(), c.err.Error())
	}
	require.NoError(t, ToGRPCError(nil))
}

func TestUnaryServerInterceptor(t *testing.T) {
	intercept := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := intercept(context.Background(), "req", info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp)

	_, err = intercept(context.Background(), "req", info, func(context.Context, any) (any, error) {
		return nil, NotFound("job not found", errStore)
	})
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())
	require.Contains(t, st.Message(), "store down")
}
