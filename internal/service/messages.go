package service

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/internal/locate"
	"github.com/signalsfoundry/sight-triangulator/model"
	"google.golang.org/protobuf/types/known/structpb"
)

// SolveRequest is the decoded form of a Solve message:
//
//	{"o1": {x,y,z}, "d1": {x,y,z}, "o2": {...}, "d2": {...},
//	 "parallel_tolerance": n?, "behind_tolerance": n?, "accept_behind": b?}
type SolveRequest struct {
	O1, D1, O2, D2 core.Vec3
	Options        core.Options

	// AcceptBehind overrides the server's policy for solutions that put the
	// target behind an observer. nil keeps the server default.
	AcceptBehind *bool
}

func encodeSolveRequest(req SolveRequest) (*structpb.Struct, error) {
	m := map[string]any{
		"o1": vecMap(req.O1),
		"d1": vecMap(req.D1),
		"o2": vecMap(req.O2),
		"d2": vecMap(req.D2),
	}
	if req.Options.ParallelTolerance > 0 {
		m["parallel_tolerance"] = req.Options.ParallelTolerance
	}
	if req.Options.BehindTolerance > 0 {
		m["behind_tolerance"] = req.Options.BehindTolerance
	}
	if req.AcceptBehind != nil {
		m["accept_behind"] = *req.AcceptBehind
	}
	return structpb.NewStruct(m)
}

func decodeSolveRequest(s *structpb.Struct) (SolveRequest, error) {
	var (
		req SolveRequest
		err error
	)
	for _, f := range []struct {
		key string
		dst *core.Vec3
	}{{"o1", &req.O1}, {"d1", &req.D1}, {"o2", &req.O2}, {"d2", &req.D2}} {
		if *f.dst, err = vecField(s, f.key); err != nil {
			return SolveRequest{}, err
		}
	}
	if req.Options.ParallelTolerance, _, err = optNumber(s, "parallel_tolerance"); err != nil {
		return SolveRequest{}, err
	}
	if req.Options.BehindTolerance, _, err = optNumber(s, "behind_tolerance"); err != nil {
		return SolveRequest{}, err
	}
	if v, ok := s.GetFields()["accept_behind"]; ok {
		b, isBool := v.GetKind().(*structpb.Value_BoolValue)
		if !isBool {
			return SolveRequest{}, fmt.Errorf("%w: %q must be a boolean", ErrInvalidRequest, "accept_behind")
		}
		req.AcceptBehind = &b.BoolValue
	}
	return req, nil
}

// Solution messages carry "behind_observer": {"station": n, "range_m": n}
// when an accepted solution puts the target behind one of the stations.
func solutionMap(sol core.Solution, behind *core.BehindObserverError) map[string]any {
	m := map[string]any{
		"range1":        sol.Range1,
		"range2":        sol.Range2,
		"point1":        vecMap(sol.Point1),
		"point2":        vecMap(sol.Point2),
		"midpoint":      vecMap(sol.Midpoint),
		"miss_distance": sol.MissDistance,
		"collinear":     sol.Collinear,
	}
	if behind != nil {
		m["behind_observer"] = map[string]any{"station": behind.Station, "range_m": behind.RangeM}
	}
	return m
}

func decodeSolution(s *structpb.Struct) (core.Solution, *core.BehindObserverError, error) {
	var (
		sol core.Solution
		err error
	)
	if sol.Range1, err = numberField(s, "range1"); err != nil {
		return core.Solution{}, nil, err
	}
	if sol.Range2, err = numberField(s, "range2"); err != nil {
		return core.Solution{}, nil, err
	}
	if sol.MissDistance, err = numberField(s, "miss_distance"); err != nil {
		return core.Solution{}, nil, err
	}
	for _, f := range []struct {
		key string
		dst *core.Vec3
	}{{"point1", &sol.Point1}, {"point2", &sol.Point2}, {"midpoint", &sol.Midpoint}} {
		if *f.dst, err = vecField(s, f.key); err != nil {
			return core.Solution{}, nil, err
		}
	}
	sol.Collinear = s.GetFields()["collinear"].GetBoolValue()

	var behind *core.BehindObserverError
	if b := s.GetFields()["behind_observer"].GetStructValue(); b != nil {
		station, err := numberField(b, "station")
		if err != nil {
			return core.Solution{}, nil, fmt.Errorf("behind_observer: %w", err)
		}
		rng, err := numberField(b, "range_m")
		if err != nil {
			return core.Solution{}, nil, fmt.Errorf("behind_observer: %w", err)
		}
		behind = &core.BehindObserverError{Station: int(station), RangeM: rng}
	}
	return sol, behind, nil
}

// Event messages:
//
//	{"id": s, "label": s?, "time": RFC3339?,
//	 "primary": {"station": s, "azimuth_deg": n, "zenith_deg": n},
//	 "secondary": {...}}
func encodeEvent(ev model.Event) (*structpb.Struct, error) {
	m := map[string]any{
		"id":        ev.ID,
		"primary":   sightingMap(ev.Primary),
		"secondary": sightingMap(ev.Secondary),
	}
	if ev.Label != "" {
		m["label"] = ev.Label
	}
	if !ev.Time.IsZero() {
		m["time"] = ev.Time.UTC().Format(time.RFC3339Nano)
	}
	return structpb.NewStruct(m)
}

func decodeEvent(s *structpb.Struct) (model.Event, error) {
	var (
		ev  model.Event
		err error
	)
	ev.ID = stringField(s, "id")
	ev.Label = stringField(s, "label")
	if ev.Time, err = timeField(s, "time"); err != nil {
		return model.Event{}, err
	}
	if ev.Primary, err = sightingField(s, "primary"); err != nil {
		return model.Event{}, err
	}
	if ev.Secondary, err = sightingField(s, "secondary"); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

func sightingMap(sg model.Sighting) map[string]any {
	return map[string]any{
		"station":     sg.StationID,
		"azimuth_deg": sg.AzimuthDeg,
		"zenith_deg":  sg.ZenithDeg,
	}
}

func sightingField(s *structpb.Struct, key string) (model.Sighting, error) {
	sub, err := structField(s, key)
	if err != nil {
		return model.Sighting{}, err
	}
	sg := model.Sighting{StationID: stringField(sub, "station")}
	if sg.StationID == "" {
		return model.Sighting{}, fmt.Errorf("%w: %s.station is required", ErrInvalidRequest, key)
	}
	if sg.AzimuthDeg, err = numberField(sub, "azimuth_deg"); err != nil {
		return model.Sighting{}, fmt.Errorf("%s: %w", key, err)
	}
	if sg.ZenithDeg, err = numberField(sub, "zenith_deg"); err != nil {
		return model.Sighting{}, fmt.Errorf("%s: %w", key, err)
	}
	return sg, nil
}

func encodeFix(f locate.Fix) (*structpb.Struct, error) {
	m := map[string]any{
		"event_id":          f.EventID,
		"solved":            f.Solved,
		"accepted":          f.Accepted,
		"primary_station":   f.Primary.ID,
		"secondary_station": f.Secondary.ID,
		"solution":          solutionMap(f.Solution, f.Behind),
		"target":            geodeticMap(f.Target),
		"estimate1":         geodeticMap(f.Estimate1),
		"estimate2":         geodeticMap(f.Estimate2),
	}
	if f.Label != "" {
		m["label"] = f.Label
	}
	if !f.Time.IsZero() {
		m["time"] = f.Time.UTC().Format(time.RFC3339Nano)
	}
	if f.HasMercator {
		m["mercator"] = map[string]any{"x": f.MercatorX, "y": f.MercatorY}
	}
	return structpb.NewStruct(m)
}

func decodeFix(s *structpb.Struct) (locate.Fix, error) {
	var (
		f   locate.Fix
		err error
	)
	f.EventID = stringField(s, "event_id")
	f.Label = stringField(s, "label")
	f.Solved = s.GetFields()["solved"].GetBoolValue()
	f.Accepted = s.GetFields()["accepted"].GetBoolValue()
	f.Primary.ID = stringField(s, "primary_station")
	f.Secondary.ID = stringField(s, "secondary_station")
	if f.Time, err = timeField(s, "time"); err != nil {
		return locate.Fix{}, err
	}

	sol, err := structField(s, "solution")
	if err != nil {
		return locate.Fix{}, err
	}
	if f.Solution, f.Behind, err = decodeSolution(sol); err != nil {
		return locate.Fix{}, err
	}
	for _, g := range []struct {
		key string
		dst *core.Geodetic
	}{{"target", &f.Target}, {"estimate1", &f.Estimate1}, {"estimate2", &f.Estimate2}} {
		if *g.dst, err = geodeticField(s, g.key); err != nil {
			return locate.Fix{}, err
		}
	}

	if merc := s.GetFields()["mercator"].GetStructValue(); merc != nil {
		if f.MercatorX, err = numberField(merc, "x"); err != nil {
			return locate.Fix{}, err
		}
		if f.MercatorY, err = numberField(merc, "y"); err != nil {
			return locate.Fix{}, err
		}
		f.HasMercator = true
	}
	return f, nil
}

// Station messages: {id, name, latitude_deg, longitude_deg, altitude_m}.
// Lists wrap them as {"stations": [...]}.
func stationMap(st model.Station) map[string]any {
	m := geodeticMap(st.Location)
	m["id"] = st.ID
	m["name"] = st.Name
	return m
}

func decodeStation(s *structpb.Struct) (model.Station, error) {
	loc, err := geodeticOf(s)
	if err != nil {
		return model.Station{}, err
	}
	return model.Station{
		ID:       stringField(s, "id"),
		Name:     stringField(s, "name"),
		Location: loc,
	}, nil
}

func encodeStations(stations []model.Station) (*structpb.Struct, error) {
	list := make([]any, 0, len(stations))
	for _, st := range stations {
		list = append(list, stationMap(st))
	}
	return structpb.NewStruct(map[string]any{"stations": list})
}

func decodeStations(s *structpb.Struct) ([]model.Station, error) {
	values := s.GetFields()["stations"].GetListValue().GetValues()
	out := make([]model.Station, 0, len(values))
	for i, v := range values {
		sub := v.GetStructValue()
		if sub == nil {
			return nil, fmt.Errorf("%w: stations[%d] is not an object", ErrInvalidRequest, i)
		}
		st, err := decodeStation(sub)
		if err != nil {
			return nil, fmt.Errorf("stations[%d]: %w", i, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func vecMap(v core.Vec3) map[string]any {
	return map[string]any{"x": v.X, "y": v.Y, "z": v.Z}
}

func geodeticMap(g core.Geodetic) map[string]any {
	return map[string]any{
		"latitude_deg":  g.LatitudeDeg,
		"longitude_deg": g.LongitudeDeg,
		"altitude_m":    g.AltitudeM,
	}
}

func vecField(s *structpb.Struct, key string) (core.Vec3, error) {
	sub, err := structField(s, key)
	if err != nil {
		return core.Vec3{}, err
	}
	var v core.Vec3
	for _, c := range []struct {
		key string
		dst *float64
	}{{"x", &v.X}, {"y", &v.Y}, {"z", &v.Z}} {
		if *c.dst, err = numberField(sub, c.key); err != nil {
			return core.Vec3{}, fmt.Errorf("%s: %w", key, err)
		}
	}
	return v, nil
}

func geodeticField(s *structpb.Struct, key string) (core.Geodetic, error) {
	sub, err := structField(s, key)
	if err != nil {
		return core.Geodetic{}, err
	}
	g, err := geodeticOf(sub)
	if err != nil {
		return core.Geodetic{}, fmt.Errorf("%s: %w", key, err)
	}
	return g, nil
}

func geodeticOf(s *structpb.Struct) (core.Geodetic, error) {
	var (
		g   core.Geodetic
		err error
	)
	if g.LatitudeDeg, err = numberField(s, "latitude_deg"); err != nil {
		return core.Geodetic{}, err
	}
	if g.LongitudeDeg, err = numberField(s, "longitude_deg"); err != nil {
		return core.Geodetic{}, err
	}
	if g.AltitudeM, err = numberField(s, "altitude_m"); err != nil {
		return core.Geodetic{}, err
	}
	return g, nil
}

func structField(s *structpb.Struct, key string) (*structpb.Struct, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrInvalidRequest, key)
	}
	sub := v.GetStructValue()
	if sub == nil {
		return nil, fmt.Errorf("%w: %q must be an object", ErrInvalidRequest, key)
	}
	return sub, nil
}

func numberField(s *structpb.Struct, key string) (float64, error) {
	n, ok, err := optNumber(s, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidRequest, key)
	}
	return n, nil
}

func optNumber(s *structpb.Struct, key string) (float64, bool, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, false, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false, fmt.Errorf("%w: %q must be a number", ErrInvalidRequest, key)
	}
	return n.NumberValue, true, nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func timeField(s *structpb.Struct, key string) (time.Time, error) {
	raw := stringField(s, key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidRequest, key, err)
	}
	return t, nil
}
