package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const namespace = "triangulator"

// Values of the "outcome" label on triangulator_solves_total.
const (
	OutcomeOK             = "ok"
	OutcomeBehind         = "behind_observer"
	OutcomeParallel       = "parallel"
	OutcomeInvalid        = "invalid_input"
	OutcomeUnknownStation = "unknown_station"
	OutcomeError          = "error"
)

// Collector holds the solver and RPC metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Solves          *prometheus.CounterVec
	SolveDurations  prometheus.Histogram
	MissDistance    prometheus.Histogram
	CatalogStations prometheus.Gauge
	RPCRequests     *prometheus.CounterVec
	RPCDurations    *prometheus.HistogramVec
}

// NewCollector registers the metrics on reg (the default registry when nil).
// Registering twice on one registry hands back the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		gatherer: prometheus.DefaultGatherer,
		Solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "Triangulation solves by outcome.",
		}, []string{"outcome"}),
		SolveDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Wall time of one solve including geodetic conversion.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		MissDistance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "miss_distance_meters",
			Help:      "Closest approach of the two sight lines.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		CatalogStations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_stations",
			Help:      "Stations currently in the catalog.",
		}),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Handled RPCs by service, method and status code.",
		}, []string{"service", "method", "code"}),
		RPCDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "RPC latency.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"service", "method"}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}

	err := errors.Join(
		registerInto(reg, &c.Solves),
		registerInto(reg, &c.SolveDurations),
		registerInto(reg, &c.MissDistance),
		registerInto(reg, &c.CatalogStations),
		registerInto(reg, &c.RPCRequests),
		registerInto(reg, &c.RPCDurations),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// registerInto registers *dst, swapping in the already-registered collector
// when one with the same descriptor exists.
func registerInto[T prometheus.Collector](reg prometheus.Registerer, dst *T) error {
	err := reg.Register(*dst)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return err
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("metric registered with a different type: %w", err)
	}
	*dst = existing
	return nil
}

// ObserveSolve counts a solve by outcome. The miss distance is only sampled
// for outcomes that carry a solution.
func (c *Collector) ObserveSolve(outcome string, missM float64, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Solves.WithLabelValues(outcome).Inc()
	c.SolveDurations.Observe(elapsed.Seconds())
	switch outcome {
	case OutcomeOK, OutcomeBehind:
		c.MissDistance.Observe(missM)
	}
}

func (c *Collector) SetCatalogStations(n int) {
	if c == nil {
		return
	}
	c.CatalogStations.Set(float64(n))
}

// UnaryServerInterceptor counts RPCs by status code and times them.
func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if c == nil {
			return handler(ctx, req)
		}
		var full string
		if info != nil {
			full = info.FullMethod
		}
		svc, method := SplitMethod(full)

		start := time.Now()
		resp, err := handler(ctx, req)

		c.RPCRequests.WithLabelValues(svc, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(svc, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// SplitMethod turns "/pkg.Service/Method" into ("Service", "Method"). Any
// part that cannot be found is reported as "unknown".
func SplitMethod(fullMethod string) (service, method string) {
	service, method = "unknown", "unknown"

	path := strings.Trim(fullMethod, "/")
	slash := strings.LastIndex(path, "/")
	if slash < 0 {
		return service, method
	}
	svc, m := path[:slash], path[slash+1:]
	if i := strings.LastIndex(svc, "/"); i >= 0 {
		svc = svc[i+1:]
	}
	if i := strings.LastIndex(svc, "."); i >= 0 {
		svc = svc[i+1:]
	}
	if svc != "" {
		service = svc
	}
	if m != "" {
		method = m
	}
	return service, method
}
