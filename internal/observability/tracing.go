package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerName is the instrumentation scope for spans created by this module.
const TracerName = "github.com/signalsfoundry/sight-triangulator"

// Span exporters.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Environment variables read by TracingConfigFromEnv.
const (
	EnvTracingEnabled     = "TRIANGULATOR_TRACING_ENABLED"
	EnvTracingExporter    = "TRIANGULATOR_TRACING_EXPORTER"
	EnvTracingServiceName = "TRIANGULATOR_TRACING_SERVICE_NAME"
	EnvTracingSampleRatio = "TRIANGULATOR_TRACING_SAMPLE_RATIO"
	EnvOTLPEndpoint       = "TRIANGULATOR_OTLP_ENDPOINT"

	defaultServiceName  = "sight-triangulator"
	defaultOTLPEndpoint = "localhost:4317"
	shutdownTimeout     = 5 * time.Second
)

// ErrUnknownExporter is returned by InitTracing for an unsupported exporter.
var ErrUnknownExporter = errors.New("unsupported tracing exporter")

// TracingConfig governs how tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string  // stdout | otlp
	Endpoint    string  // OTLP/gRPC collector, host:port
	SampleRatio float64 // parent-based trace-id ratio in [0,1]

	// StdoutWriter receives spans from the stdout exporter. Results own
	// stdout, so it defaults to stderr.
	StdoutWriter io.Writer
}

// TracingConfigFromEnv reads the TRIANGULATOR_TRACING_* variables. A sample
// ratio that does not parse or lies outside [0,1] is ignored.
func TracingConfigFromEnv() TracingConfig {
	cfg := TracingConfig{
		Enabled:     strings.EqualFold(os.Getenv(EnvTracingEnabled), "true"),
		ServiceName: os.Getenv(EnvTracingServiceName),
		Exporter:    strings.ToLower(os.Getenv(EnvTracingExporter)),
		Endpoint:    os.Getenv(EnvOTLPEndpoint),
		SampleRatio: 1,
	}
	if raw := os.Getenv(EnvTracingSampleRatio); raw != "" {
		if r, err := strconv.ParseFloat(raw, 64); err == nil && r >= 0 && r <= 1 {
			cfg.SampleRatio = r
		}
	}
	return cfg.withDefaults()
}

func (c TracingConfig) withDefaults() TracingConfig {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.Exporter == "" {
		c.Exporter = ExporterStdout
	}
	if c.Exporter == ExporterOTLP && c.Endpoint == "" {
		c.Endpoint = defaultOTLPEndpoint
	}
	if c.StdoutWriter == nil {
		c.StdoutWriter = os.Stderr
	}
	return c
}

// InitTracing installs the global tracer provider and propagators. When
// tracing is disabled a no-op provider is installed so spans cost nothing.
// The returned function flushes and stops the provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	cfg = cfg.withDefaults()

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "triangulator"),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		return stdouttrace.New(
			stdouttrace.WithWriter(cfg.StdoutWriter),
			stdouttrace.WithPrettyPrint(),
			stdouttrace.WithoutTimestamps(),
		)
	case ExporterOTLP:
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, cfg.Exporter)
	}
}

// StartSpan starts an internal span under the module's tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// ShutdownWithTimeout runs shutdown with a bounded deadline and logs, rather
// than returns, any failure.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
