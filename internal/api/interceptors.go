package api

import (
	"context"
	"log/slog"
	"path"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/txgate/internal/metrics"
)

func methodName(fullMethod string) string {
	return path.Base(fullMethod)
}

func observe(method string, start time.Time, err error) codes.Code {
	code := status.Code(err)
	metrics.GRPCRequestsTotal.WithLabelValues(method, code.String()).Inc()
	metrics.GRPCLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	return code
}

func logCall(method string, code codes.Code, elapsed time.Duration, err error) {
	switch code {
	case codes.OK:
		slog.Debug("gRPC call", "method", method, "duration", elapsed)
	case codes.Internal, codes.Unknown, codes.Unavailable:
		slog.Warn("gRPC call failed", "method", method, "code", code, "duration", elapsed, "error", err)
	default:
		slog.Info("gRPC call rejected", "method", method, "code", code, "duration", elapsed, "error", err)
	}
}

// unaryObserver logs every call and records its latency and status code.
func unaryObserver(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	method := methodName(info.FullMethod)
	resp, err := handler(ctx, req)
	code := observe(method, start, err)
	logCall(method, code, time.Since(start), err)
	return resp, err
}

func streamObserver(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	method := methodName(info.FullMethod)
	err := handler(srv, ss)
	code := observe(method, start, err)
	if code != codes.Canceled {
		logCall(method, code, time.Since(start), err)
	}
	return err
}

// unaryRecovery turns a handler panic into codes.Internal.
func unaryRecovery(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in gRPC handler", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
			err = status.Errorf(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}

func streamRecovery(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in gRPC stream", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
			err = status.Errorf(codes.Internal, "internal error")
		}
	}()
	return handler(srv, ss)
}
