package service

import (
	"context"

	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader carries the correlation ID in both directions.
const RequestIDHeader = "x-request-id"

// RequestIDUnaryServerInterceptor adopts the caller's x-request-id (or mints
// one), returns it as a response header and stores a logger tagged with the
// ID and method on the handler context.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if id := incomingRequestID(ctx); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, log := logging.WithRequestLogger(ctx, base.With(logging.String("method", info.FullMethod)))
		ctx = logging.ContextWithLogger(ctx, log)

		if err := grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, logging.RequestIDFromContext(ctx))); err != nil {
			log.Debug(ctx, "request id header not sent", logging.Err(err))
		}
		return handler(ctx, req)
	}
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(RequestIDHeader); len(v) > 0 {
		return v[0]
	}
	return ""
}

// NewGRPCServer returns a server instrumented with otelgrpc and the
// request-id, tracing and metrics interceptors, outermost first. A nil
// metrics collector skips RPC metrics.
func NewGRPCServer(log logging.Logger, metrics *observability.Collector, extra ...grpc.ServerOption) *grpc.Server {
	chain := grpc.ChainUnaryInterceptor(
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
		metrics.UnaryServerInterceptor(),
	)
	opts := append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler()), chain}, extra...)
	return grpc.NewServer(opts...)
}
