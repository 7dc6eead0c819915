package service

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/internal/locate"
	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/internal/observability"
	"github.com/signalsfoundry/sight-triangulator/kb"
	"github.com/signalsfoundry/sight-triangulator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type harness struct {
	client  *Client
	catalog *kb.Catalog
	metrics *observability.Collector
}

func startServer(t *testing.T, opts locate.Options) *harness {
	t.Helper()

	catalog := kb.NewCatalog()
	require.NoError(t, catalog.AddStation(model.Station{
		ID:       "NIK",
		Name:     "Nikkaluokta",
		Location: core.Geodetic{LatitudeDeg: 67.85, LongitudeDeg: 19.02, AltitudeM: 470},
	}))
	require.NoError(t, catalog.AddStation(model.Station{
		ID:       "SIL",
		Name:     "Silkkimuotka",
		Location: core.Geodetic{LatitudeDeg: 68.05, LongitudeDeg: 20.80, AltitudeM: 330},
	}))

	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	log := logging.Noop()
	srv := NewServer(catalog, locate.New(catalog, opts, log, metrics), metrics, log)
	gs := NewGRPCServer(log, metrics)
	RegisterTriangulationServer(gs, srv)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = gs.Serve(lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		gs.Stop()
		srv.Close()
	})
	return &harness{client: NewClient(conn), catalog: catalog, metrics: metrics}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSolveConvergingLines(t *testing.T) {
	h := startServer(t, locate.Options{})

	sol, err := h.client.Solve(testContext(t), SolveRequest{
		O1: core.Vec3{},
		D1: core.Vec3{X: 1},
		O2: core.Vec3{X: 50, Y: -50},
		D2: core.Vec3{Y: 1},
	})
	require.NoError(t, err)
	assert.InDelta(t, 50, sol.Range1, 1e-9)
	assert.InDelta(t, 50, sol.Range2, 1e-9)
	assert.InDelta(t, 0, sol.MissDistance, 1e-9)
	assert.InDelta(t, 50, sol.Midpoint.X, 1e-9)
	assert.False(t, sol.Collinear)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Solves.WithLabelValues(observability.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RPCRequests.WithLabelValues("TriangulationService", "Solve", "OK")))
}

func TestSolveErrorCodes(t *testing.T) {
	h := startServer(t, locate.Options{})

	tests := []struct {
		name string
		req  SolveRequest
		code codes.Code
	}{
		{
			name: "parallel",
			req:  SolveRequest{D1: core.Vec3{Y: 1}, O2: core.Vec3{X: 100}, D2: core.Vec3{Y: 1}},
			code: codes.InvalidArgument,
		},
		{
			name: "not unit",
			req:  SolveRequest{D1: core.Vec3{X: 2}, O2: core.Vec3{X: 50, Y: -50}, D2: core.Vec3{Y: 1}},
			code: codes.InvalidArgument,
		},
		{
			name: "behind observer",
			req:  SolveRequest{D1: core.Vec3{X: 1}, O2: core.Vec3{X: 50, Y: 10}, D2: core.Vec3{Y: 1}},
			code: codes.FailedPrecondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.client.Solve(testContext(t), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err), "err=%v", err)
		})
	}
}

func TestLocateOverGRPC(t *testing.T) {
	h := startServer(t, locate.Options{})

	fix, err := h.client.Locate(testContext(t), model.Event{
		ID:        "blob",
		Time:      time.Date(1999, 2, 16, 17, 40, 45, 0, time.UTC),
		Primary:   model.Sighting{StationID: "NIK", AzimuthDeg: 2.2861, ZenithDeg: 35.0930},
		Secondary: model.Sighting{StationID: "SIL", AzimuthDeg: 334.9428, ZenithDeg: 33.7834},
	})
	require.NoError(t, err)

	assert.Equal(t, "blob", fix.EventID)
	assert.True(t, fix.Accepted)
	assert.Equal(t, "NIK", fix.Primary.ID)
	assert.InDelta(t, 69.27, fix.Target.LatitudeDeg, 1e-3)
	assert.InDelta(t, 19.18, fix.Target.LongitudeDeg, 1e-3)
	assert.InDelta(t, 236450, fix.Target.AltitudeM, 10)
	assert.True(t, fix.HasMercator)
	assert.True(t, fix.Time.Equal(time.Date(1999, 2, 16, 17, 40, 45, 0, time.UTC)))
}

func TestLocateErrorCodes(t *testing.T) {
	h := startServer(t, locate.Options{})
	ctx := testContext(t)

	_, err := h.client.Locate(ctx, model.Event{
		ID:        "x",
		Primary:   model.Sighting{StationID: "NIK", ZenithDeg: 10},
		Secondary: model.Sighting{StationID: "KIR", ZenithDeg: 10},
	})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = h.client.Locate(ctx, model.Event{
		ID:        "y",
		Primary:   model.Sighting{StationID: "NIK", ZenithDeg: 10},
		Secondary: model.Sighting{StationID: "NIK", ZenithDeg: 10},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestListStationsAndCatalogGauge(t *testing.T) {
	h := startServer(t, locate.Options{})
	ctx := testContext(t)

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.CatalogStations))

	stations, err := h.client.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, "NIK", stations[0].ID)
	assert.Equal(t, "Silkkimuotka", stations[1].Name)
	assert.Equal(t, 68.05, stations[1].Location.LatitudeDeg)

	require.NoError(t, h.catalog.AddStation(model.Station{ID: "KIR", Location: core.Geodetic{LatitudeDeg: 67.86, LongitudeDeg: 20.42}}))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.CatalogStations))
}

func TestRequestIDEchoedInHeader(t *testing.T) {
	h := startServer(t, locate.Options{})
	ctx := logging.ContextWithRequestID(testContext(t), "req-123")

	var header metadata.MD
	_, err := h.client.ListStations(ctx, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-123"}, header.Get("x-request-id"))
}

func TestSolveBehindObserverPolicy(t *testing.T) {
	// Lines meet at (100,0,0): 100 m ahead of station 1, 10 m behind station 2.
	req := SolveRequest{D1: core.Vec3{X: 1}, O2: core.Vec3{X: 100, Y: 10}, D2: core.Vec3{Y: 1}}
	yes, no := true, false

	accepting := startServer(t, locate.Options{AcceptBehind: true})
	sol, err := accepting.client.Solve(testContext(t), req)
	var behind *core.BehindObserverError
	require.ErrorAs(t, err, &behind)
	assert.Equal(t, 2, behind.Station)
	assert.InDelta(t, -10, behind.RangeM, 1e-9)
	assert.InDelta(t, 100, sol.Range1, 1e-9)
	assert.InDelta(t, -10, sol.Range2, 1e-9)
	assert.InDelta(t, 100, sol.Midpoint.X, 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(accepting.metrics.Solves.WithLabelValues(observability.OutcomeBehind)))

	override := req
	override.AcceptBehind = &no
	_, err = accepting.client.Solve(testContext(t), override)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	strict := startServer(t, locate.Options{})
	_, err = strict.client.Solve(testContext(t), req)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	override.AcceptBehind = &yes
	sol, err = strict.client.Solve(testContext(t), override)
	require.ErrorIs(t, err, core.ErrTargetBehindObserver)
	assert.InDelta(t, 100, sol.Range1, 1e-9)
}

func TestAddAndRemoveStation(t *testing.T) {
	h := startServer(t, locate.Options{})
	ctx := testContext(t)

	kir := model.Station{ID: "KIR", Name: "Kiruna", Location: core.Geodetic{LatitudeDeg: 67.86, LongitudeDeg: 20.42, AltitudeM: 420}}
	got, err := h.client.AddStation(ctx, kir)
	require.NoError(t, err)
	assert.Equal(t, kir, got)
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.CatalogStations))

	_, err = h.client.AddStation(ctx, kir)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = h.client.AddStation(ctx, model.Station{ID: "BAD", Location: core.Geodetic{LatitudeDeg: 95}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	require.NoError(t, h.client.RemoveStation(ctx, "KIR"))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.CatalogStations))

	assert.Equal(t, codes.NotFound, status.Code(h.client.RemoveStation(ctx, "KIR")))
	assert.Equal(t, codes.InvalidArgument, status.Code(h.client.RemoveStation(ctx, "")))
}
