package service

import (
	"context"

	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// TracingUnaryServerInterceptor names the RPC span after the triangulation
// method and tags it with the request ID. The otelgrpc stats handler normally
// opens the span; when it is absent the interceptor opens and ends its own.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(observability.TracerName)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		svc, method := observability.SplitMethod(info.FullMethod)
		name := "Triangulator/" + svc + "/" + method

		span := trace.SpanFromContext(ctx)
		owned := !span.SpanContext().IsValid()
		if owned {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		} else {
			span.SetName(name)
		}
		span.SetAttributes(rpcAttributes(ctx, svc, method)...)

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status.Code(err).String())
		}
		return resp, err
	}
}

func rpcAttributes(ctx context.Context, svc, method string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "grpc"),
		attribute.String("rpc.service", svc),
		attribute.String("rpc.method", method),
	}
	if id := logging.RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("request_id", id))
	}
	return attrs
}

// StartChildSpan opens a span for solver work inside a handler.
func StartChildSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return observability.StartSpan(ctx, name, attrs...)
}
