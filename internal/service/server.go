package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/internal/locate"
	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/internal/observability"
	"github.com/signalsfoundry/sight-triangulator/kb"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server implements TriangulationServer over a station catalog.
type Server struct {
	catalog *kb.Catalog
	locator *locate.Locator
	metrics *observability.Collector
	log     logging.Logger

	unsubscribe func()
}

var _ TriangulationServer = (*Server)(nil)

// NewServer wires a server to catalog and locator. The catalog station gauge
// tracks the catalog until Close is called. metrics and log may be nil.
func NewServer(catalog *kb.Catalog, locator *locate.Locator, metrics *observability.Collector, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		catalog: catalog,
		locator: locator,
		metrics: metrics,
		log:     log,
	}
	s.unsubscribe = catalog.Subscribe(func(ev kb.Event) {
		metrics.SetCatalogStations(ev.Count)
	})
	metrics.SetCatalogStations(catalog.Len())
	return s
}

// Close detaches the server from catalog notifications.
func (s *Server) Close() {
	s.unsubscribe()
}

func (s *Server) Solve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := decodeSolveRequest(req)
	if err != nil {
		return nil, ToStatusError(err)
	}

	opts := s.locator.Options().Solver
	if in.Options.ParallelTolerance > 0 {
		opts.ParallelTolerance = in.Options.ParallelTolerance
	}
	if in.Options.BehindTolerance > 0 {
		opts.BehindTolerance = in.Options.BehindTolerance
	}

	ctx, span := StartChildSpan(ctx, "triangulate")
	defer span.End()

	acceptBehind := s.locator.Options().AcceptBehind
	if in.AcceptBehind != nil {
		acceptBehind = *in.AcceptBehind
	}

	start := time.Now()
	sol, err := core.Triangulate(in.O1, in.D1, in.O2, in.D2, opts)
	outcome := locate.Outcome(err)
	s.metrics.ObserveSolve(outcome, sol.MissDistance, time.Since(start))
	span.SetAttributes(attribute.String("outcome", outcome))

	log := logging.LoggerFromContext(ctx, s.log)
	var behind *core.BehindObserverError
	switch {
	case err == nil:
	case errors.As(err, &behind) && acceptBehind:
		log.Debug(ctx, "accepting solution behind observer", logging.Err(err))
	default:
		span.RecordError(err)
		log.Debug(ctx, "solve rejected",
			logging.String("outcome", outcome),
			logging.Err(err),
		)
		return nil, ToStatusError(err)
	}

	out, err := structpb.NewStruct(solutionMap(sol, behind))
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func (s *Server) Locate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ev, err := decodeEvent(req)
	if err != nil {
		return nil, ToStatusError(err)
	}

	fix, err := s.locator.Locate(ctx, ev)
	if err != nil {
		return nil, ToStatusError(err)
	}

	out, err := encodeFix(fix)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func (s *Server) ListStations(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	_, span := StartChildSpan(ctx, "catalog.list")
	defer span.End()

	stations := s.catalog.ListStations()
	span.SetAttributes(attribute.Int("stations", len(stations)))

	out, err := encodeStations(stations)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func (s *Server) AddStation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	st, err := decodeStation(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if err := s.catalog.AddStation(st); err != nil {
		return nil, ToStatusError(err)
	}
	logging.LoggerFromContext(ctx, s.log).Info(ctx, "station added",
		logging.String("station", st.ID),
		logging.Int("stations", s.catalog.Len()),
	)

	out, err := structpb.NewStruct(stationMap(st))
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func (s *Server) RemoveStation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "id")
	if id == "" {
		return nil, ToStatusError(fmt.Errorf("%w: missing %q", ErrInvalidRequest, "id"))
	}
	if err := s.catalog.RemoveStation(id); err != nil {
		return nil, ToStatusError(err)
	}
	logging.LoggerFromContext(ctx, s.log).Info(ctx, "station removed",
		logging.String("station", id),
		logging.Int("stations", s.catalog.Len()),
	)
	return &structpb.Struct{}, nil
}
