package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	return c, reg
}

func TestInterceptorCountsByCode(t *testing.T) {
	c, reg := newTestCollector(t)
	intercept := c.UnaryServerInterceptor()

	ok := func(context.Context, any) (any, error) { return "fix", nil }
	fail := func(context.Context, any) (any, error) {
		return nil, status.Error(codes.InvalidArgument, "parallel")
	}

	solve := &grpc.UnaryServerInfo{FullMethod: "/triangulator.v1.TriangulationService/Solve"}
	locate := &grpc.UnaryServerInfo{FullMethod: "/triangulator.v1.TriangulationService/Locate"}
	_, err := intercept(context.Background(), nil, solve, ok)
	require.NoError(t, err)
	_, err = intercept(context.Background(), nil, solve, ok)
	require.NoError(t, err)
	_, err = intercept(context.Background(), nil, locate, fail)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.RPCRequests.WithLabelValues("TriangulationService", "Solve", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RPCRequests.WithLabelValues("TriangulationService", "Locate", "InvalidArgument")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.RPCDurations), "one series per method")

	n, err := testutil.GatherAndCount(reg, "triangulator_rpc_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNilCollectorIsInert(t *testing.T) {
	var c *Collector
	c.ObserveSolve(OutcomeOK, 1, time.Millisecond)
	c.SetCatalogStations(3)

	resp, err := c.UnaryServerInterceptor()(context.Background(), nil, nil,
		func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestObserveSolveSamplesMissOnlyWithSolution(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveSolve(OutcomeOK, 0.27, time.Millisecond)
	c.ObserveSolve(OutcomeBehind, 3, time.Millisecond)
	c.ObserveSolve(OutcomeParallel, 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Solves.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Solves.WithLabelValues(OutcomeParallel)))
	assert.Equal(t, uint64(2), sampleCount(t, c.MissDistance))
	assert.Equal(t, uint64(3), sampleCount(t, c.SolveDurations))
}

func TestNewCollectorTwiceReusesRegistered(t *testing.T) {
	first, reg := newTestCollector(t)
	second, err := NewCollector(reg)
	require.NoError(t, err)
	assert.Same(t, first.Solves, second.Solves)
	assert.Same(t, first.RPCDurations, second.RPCDurations)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c, _ := newTestCollector(t)
	c.SetCatalogStations(7)
	c.ObserveSolve(OutcomeOK, 1, time.Millisecond)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "triangulator_catalog_stations 7")
	assert.Contains(t, body, `triangulator_solves_total{outcome="ok"} 1`)
	assert.Contains(t, body, "triangulator_miss_distance_meters_count 1")
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"":         {"unknown", "unknown"},
		"nonsense": {"unknown", "unknown"},
		"/triangulator.v1.TriangulationService/Solve": {"TriangulationService", "Solve"},
		"Svc/Method":   {"Svc", "Method"},
		"/a/b.Svc/Get": {"Svc", "Get"},
		"/pkg.Svc/":    {"unknown", "unknown"},
	}
	for in, want := range cases {
		svc, method := SplitMethod(in)
		assert.Equal(t, want, [2]string{svc, method}, "SplitMethod(%q)", in)
	}
}

func sampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	var m dto.Metric
	require.NoError(t, (<-ch).Write(&m))
	return m.GetHistogram().GetSampleCount()
}
