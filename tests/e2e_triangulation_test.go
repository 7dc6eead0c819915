package tests

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/internal/config"
	"github.com/signalsfoundry/sight-triangulator/internal/locate"
	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/internal/observability"
	"github.com/signalsfoundry/sight-triangulator/internal/service"
	"github.com/signalsfoundry/sight-triangulator/internal/sightsim"
	"github.com/signalsfoundry/sight-triangulator/kb"
	"github.com/signalsfoundry/sight-triangulator/timectrl"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

type e2eEnv struct {
	ctx      context.Context
	scenario *config.Scenario
	catalog  *kb.Catalog
	metrics  *observability.Collector
	client   *service.Client
}

func newE2EEnv(t *testing.T) *e2eEnv {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	f, err := os.Open(filepath.Join("..", "configs", "aurora_1999.yaml"))
	if err != nil {
		cancel()
		t.Fatalf("open scenario: %v", err)
	}
	sc, err := config.Parse(f)
	_ = f.Close()
	if err != nil {
		cancel()
		t.Fatalf("config.Parse: %v", err)
	}

	catalog := kb.NewCatalog()
	if err := sc.Populate(catalog); err != nil {
		cancel()
		t.Fatalf("Populate: %v", err)
	}

	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		cancel()
		t.Fatalf("NewCollector: %v", err)
	}

	log := logging.Noop()
	srv := service.NewServer(catalog, locate.New(catalog, sc.LocateOptions(), log, metrics), metrics, log)
	grpcServer := service.NewGRPCServer(log, metrics)
	service.RegisterTriangulationServer(grpcServer, srv)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		cancel()
		t.Fatalf("net.Listen: %v", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(lis)
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		cancel()
		t.Fatalf("grpc.NewClient: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		grpcServer.GracefulStop()
		srv.Close()
		cancel()
		if err := <-serveErr; err != nil {
			t.Errorf("Serve returned %v", err)
		}
	})

	return &e2eEnv{
		ctx:      ctx,
		scenario: sc,
		catalog:  catalog,
		metrics:  metrics,
		client:   service.NewClient(conn),
	}
}

func TestEndToEndLocateScenario(t *testing.T) {
	env := newE2EEnv(t)

	local := locate.New(env.catalog, env.scenario.LocateOptions(), nil, nil)
	for _, ev := range env.scenario.ModelEvents() {
		remote, err := env.client.Locate(env.ctx, ev)
		if err != nil {
			t.Fatalf("Locate(%s): %v", ev.ID, err)
		}
		want, err := local.Locate(env.ctx, ev)
		if err != nil {
			t.Fatalf("local Locate(%s): %v", ev.ID, err)
		}

		if d := core.GeodeticToECEF(remote.Target).DistanceTo(want.Solution.Midpoint); d > 1e-3 {
			t.Fatalf("%s: remote and local fixes differ by %.6f m", ev.ID, d)
		}
		if !remote.Accepted {
			t.Fatalf("%s: fix not accepted", ev.ID)
		}
		if got := remote.Target.AltitudeM; got < 236440 || got > 236460 {
			t.Fatalf("%s: altitude = %.1f m, want ~236450", ev.ID, got)
		}
	}
}

func TestEndToEndSimulatedStaticTarget(t *testing.T) {
	env := newE2EEnv(t)

	stations := env.scenario.ModelStations()
	truth := core.GeodeticToECEF(core.Geodetic{LatitudeDeg: 68.6, LongitudeDeg: 20.1, AltitudeM: 110e3})
	gen := &sightsim.Generator{
		Primary:         stations[0],
		Secondary:       stations[1],
		Target:          core.StaticTarget{Position: truth},
		MinElevationDeg: 5,
	}
	obs, err := gen.Pass(env.ctx, timectrl.NewSweep(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute, 2*time.Minute))
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if len(obs) != 3 {
		t.Fatalf("Pass returned %d observations, want 3", len(obs))
	}

	for _, o := range obs {
		fix, err := env.client.Locate(env.ctx, o.Event)
		if err != nil {
			t.Fatalf("Locate(%s): %v", o.Event.ID, err)
		}
		if d := fix.Solution.Midpoint.DistanceTo(truth); d > 1e-3 {
			t.Fatalf("%s: fix is %.6f m from truth", o.Event.ID, d)
		}
	}
}

func TestEndToEndErrorsAndMetrics(t *testing.T) {
	env := newE2EEnv(t)

	ev := env.scenario.ModelEvents()[0]
	ev.Secondary.StationID = "KIR"
	if _, err := env.client.Locate(env.ctx, ev); status.Code(err) != codes.NotFound {
		t.Fatalf("Locate unknown station code = %v, want NotFound (err=%v)", status.Code(err), err)
	}

	_, err := env.client.Solve(env.ctx, service.SolveRequest{
		D1: core.Vec3{Y: 1},
		O2: core.Vec3{X: 100},
		D2: core.Vec3{Y: 1},
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("Solve parallel code = %v, want InvalidArgument (err=%v)", status.Code(err), err)
	}

	sol, err := env.client.Solve(env.ctx, service.SolveRequest{
		D1: core.Vec3{X: 1},
		O2: core.Vec3{X: 100},
		D2: core.Vec3{X: -1},
	})
	if err != nil {
		t.Fatalf("Solve collinear: %v", err)
	}
	if !sol.Collinear || sol.Midpoint.X != 50 {
		t.Fatalf("Solve collinear = %+v, want midpoint (50,0,0)", sol)
	}

	rec := httptest.NewRecorder()
	env.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`triangulator_solves_total{outcome="unknown_station"} 1`,
		`triangulator_solves_total{outcome="parallel"} 1`,
		`triangulator_catalog_stations 2`,
		`triangulator_rpc_requests_total{code="NotFound",method="Locate",service="TriangulationService"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("/metrics missing %q", want)
		}
	}
}
