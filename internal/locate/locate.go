package locate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/internal/observability"
	"github.com/signalsfoundry/sight-triangulator/kb"
	"github.com/signalsfoundry/sight-triangulator/model"
	"github.com/wroge/wgs84"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrSameStation is returned when both sightings of an event come from one
// station.
var ErrSameStation = errors.New("event sightings must come from two different stations")

// Web Mercator is undefined beyond this latitude.
const maxMercatorLatDeg = 85.05112878

// Options configures a Locator.
type Options struct {
	Solver core.Options

	// AcceptBehind keeps solutions whose target lies behind an observer
	// instead of reporting them as errors.
	AcceptBehind bool

	// Workers bounds LocateAll concurrency. Values < 1 mean 1.
	Workers int
}

// Fix is a located event.
type Fix struct {
	EventID string
	Label   string
	Time    time.Time

	Primary   model.Station
	Secondary model.Station

	Solution core.Solution

	// Target is the geodetic midpoint of the two estimates; Estimate1 and
	// Estimate2 are the per-station points along each line of sight.
	Target    core.Geodetic
	Estimate1 core.Geodetic
	Estimate2 core.Geodetic

	// Web Mercator (EPSG:3857) coordinates of Target, for map overlays.
	MercatorX, MercatorY float64
	HasMercator          bool

	// Solved is set whenever the solver produced a Solution, including
	// one that puts the target behind an observer.
	Solved bool

	// Accepted is false when the solution exists but puts the target
	// behind an observer.
	Accepted bool

	// Behind names the station that sees the target behind itself.
	Behind *core.BehindObserverError
}

// Locator resolves events against a station catalog.
type Locator struct {
	catalog *kb.Catalog
	opts    Options
	log     logging.Logger
	metrics *observability.Collector
}

// New constructs a Locator. log and metrics may be nil.
func New(catalog *kb.Catalog, opts Options, log logging.Logger, metrics *observability.Collector) *Locator {
	if log == nil {
		log = logging.Noop()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Locator{catalog: catalog, opts: opts, log: log, metrics: metrics}
}

// Options returns the locator configuration.
func (l *Locator) Options() Options { return l.opts }

// Locate triangulates a single event.
//
// When the target falls behind an observer the Fix is returned together
// with an error matching core.ErrTargetBehindObserver, unless AcceptBehind
// is set, in which case the Fix is accepted and the error dropped.
func (l *Locator) Locate(ctx context.Context, ev model.Event) (Fix, error) {
	ctx, span := observability.StartSpan(ctx, "locate.event",
		attribute.String("event.id", ev.ID),
		attribute.String("station.primary", ev.Primary.StationID),
		attribute.String("station.secondary", ev.Secondary.StationID),
	)
	defer span.End()

	start := time.Now()
	fix, err := l.locate(ev)

	outcome := Outcome(err)
	l.metrics.ObserveSolve(outcome, fix.Solution.MissDistance, time.Since(start))
	span.SetAttributes(attribute.String("outcome", outcome))

	log := logging.LoggerFromContext(ctx, l.log).With(logging.String("event_id", ev.ID))
	switch {
	case err == nil:
		span.SetAttributes(attribute.Float64("miss_distance_m", fix.Solution.MissDistance))
		log.Debug(ctx, "event located",
			logging.Float("lat_deg", fix.Target.LatitudeDeg),
			logging.Float("lon_deg", fix.Target.LongitudeDeg),
			logging.Float("alt_m", fix.Target.AltitudeM),
			logging.Float("miss_m", fix.Solution.MissDistance),
		)
		return fix, nil

	case errors.Is(err, core.ErrTargetBehindObserver) && l.opts.AcceptBehind:
		log.Warn(ctx, "accepting solution behind observer", logging.Err(err))
		fix.Accepted = true
		return fix, nil

	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Warn(ctx, "event not located", logging.String("outcome", outcome), logging.Err(err))
		return fix, err
	}
}

func (l *Locator) locate(ev model.Event) (Fix, error) {
	if ev.Primary.StationID == ev.Secondary.StationID {
		return Fix{}, fmt.Errorf("%w: %w (%q)", core.ErrInvalidInput, ErrSameStation, ev.Primary.StationID)
	}

	st1, o1, d1, err := l.sightLine(ev.Primary)
	if err != nil {
		return Fix{}, err
	}
	st2, o2, d2, err := l.sightLine(ev.Secondary)
	if err != nil {
		return Fix{}, err
	}

	sol, solveErr := core.Triangulate(o1, d1, o2, d2, l.opts.Solver)
	if solveErr != nil && !errors.Is(solveErr, core.ErrTargetBehindObserver) {
		return Fix{}, solveErr
	}

	fix := Fix{
		EventID:   ev.ID,
		Label:     ev.Label,
		Time:      ev.Time,
		Primary:   st1,
		Secondary: st2,
		Solution:  sol,
		Target:    core.ECEFToGeodetic(sol.Midpoint),
		Estimate1: core.ECEFToGeodetic(sol.Point1),
		Estimate2: core.ECEFToGeodetic(sol.Point2),
		Solved:    true,
		Accepted:  solveErr == nil,
	}
	errors.As(solveErr, &fix.Behind)
	fix.MercatorX, fix.MercatorY, fix.HasMercator = webMercator(fix.Target)
	return fix, solveErr
}

func (l *Locator) sightLine(s model.Sighting) (model.Station, core.Vec3, core.Vec3, error) {
	st, err := l.catalog.GetStation(s.StationID)
	if err != nil {
		return model.Station{}, core.Vec3{}, core.Vec3{}, err
	}
	origin, err := l.catalog.Position(s.StationID)
	if err != nil {
		return model.Station{}, core.Vec3{}, core.Vec3{}, err
	}
	dir, err := core.LineOfSight(st.Location, s.AzimuthDeg, s.ZenithDeg)
	if err != nil {
		return model.Station{}, core.Vec3{}, core.Vec3{}, fmt.Errorf("station %q: %w", s.StationID, err)
	}
	return st, origin, dir, nil
}

func webMercator(g core.Geodetic) (x, y float64, ok bool) {
	if math.Abs(g.LatitudeDeg) > maxMercatorLatDeg {
		return 0, 0, false
	}
	x, y, _ = wgs84.LonLat().To(wgs84.WebMercator())(g.LongitudeDeg, g.LatitudeDeg, 0)
	return x, y, true
}

// Outcome classifies a Locate error for metrics and reports.
func Outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, core.ErrTargetBehindObserver):
		return observability.OutcomeBehind
	case errors.Is(err, core.ErrParallelSightLines):
		return observability.OutcomeParallel
	case errors.Is(err, kb.ErrStationNotFound):
		return observability.OutcomeUnknownStation
	case errors.Is(err, core.ErrInvalidInput):
		return observability.OutcomeInvalid
	default:
		return observability.OutcomeError
	}
}
