package report

import (
	"time"

	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/internal/locate"
)

type fixesDocument struct {
	Results []fixRecord `json:"results"`
	Summary summary     `json:"summary"`
}

type fixRecord struct {
	EventID     string          `json:"event_id"`
	Label       string          `json:"label,omitempty"`
	Time        *time.Time      `json:"time,omitempty"`
	Primary     string          `json:"primary"`
	Secondary   string          `json:"secondary"`
	Outcome     string          `json:"outcome"`
	Accepted    bool            `json:"accepted"`
	Error       string          `json:"error,omitempty"`
	Solution    *solutionRecord `json:"solution,omitempty"`
	TruthErrorM *float64        `json:"truth_error_m,omitempty"`
}

type solutionRecord struct {
	Range1M       float64   `json:"range1_m"`
	Range2M       float64   `json:"range2_m"`
	MissDistanceM float64   `json:"miss_distance_m"`
	Collinear     bool      `json:"collinear,omitempty"`
	Midpoint      vec       `json:"midpoint_ecef_m"`
	Target        geodetic  `json:"target"`
	Estimate1     *geodetic `json:"estimate1,omitempty"`
	Estimate2     *geodetic `json:"estimate2,omitempty"`
	Mercator      *mercator `json:"web_mercator,omitempty"`
}

type vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type geodetic struct {
	LatitudeDeg  float64 `json:"latitude_deg"`
	LongitudeDeg float64 `json:"longitude_deg"`
	AltitudeM    float64 `json:"altitude_m"`
}

type mercator struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type summary struct {
	Total       int            `json:"total"`
	Accepted    int            `json:"accepted"`
	Failed      int            `json:"failed"`
	Outcomes    map[string]int `json:"outcomes"`
	MeanMissM   float64        `json:"mean_miss_m"`
	StdDevMissM float64        `json:"stddev_miss_m"`
	MaxMissM    float64        `json:"max_miss_m"`
}

func fixRecords(rows []Row) []fixRecord {
	out := make([]fixRecord, 0, len(rows))
	for _, r := range rows {
		rec := fixRecord{
			EventID:   r.Event.ID,
			Label:     r.Event.Label,
			Primary:   r.Event.Primary.StationID,
			Secondary: r.Event.Secondary.StationID,
			Outcome:   locate.Outcome(r.Err),
			Accepted:  r.Err == nil && r.Fix.Accepted,
		}
		if !r.Event.Time.IsZero() {
			t := r.Event.Time.UTC()
			rec.Time = &t
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		if r.Fix.Solved {
			rec.Solution = fixSolution(r.Fix)
		}
		if r.HasTruth {
			v := r.TruthErrorM
			rec.TruthErrorM = &v
		}
		out = append(out, rec)
	}
	return out
}

func fixSolution(f locate.Fix) *solutionRecord {
	e1, e2 := geodeticRecord(f.Estimate1), geodeticRecord(f.Estimate2)
	rec := &solutionRecord{
		Range1M:       f.Solution.Range1,
		Range2M:       f.Solution.Range2,
		MissDistanceM: f.Solution.MissDistance,
		Collinear:     f.Solution.Collinear,
		Midpoint:      vecRecord(f.Solution.Midpoint),
		Target:        geodeticRecord(f.Target),
		Estimate1:     &e1,
		Estimate2:     &e2,
	}
	if f.HasMercator {
		rec.Mercator = &mercator{X: f.MercatorX, Y: f.MercatorY}
	}
	return rec
}

func summaryRecord(s locate.Summary) summary {
	return summary{
		Total:       s.Total,
		Accepted:    s.Accepted,
		Failed:      s.Failed,
		Outcomes:    s.Outcomes,
		MeanMissM:   s.MeanMissM,
		StdDevMissM: s.StdDevMissM,
		MaxMissM:    s.MaxMissM,
	}
}

func vecRecord(v core.Vec3) vec {
	return vec{X: v.X, Y: v.Y, Z: v.Z}
}

func geodeticRecord(g core.Geodetic) geodetic {
	return geodetic{LatitudeDeg: g.LatitudeDeg, LongitudeDeg: g.LongitudeDeg, AltitudeM: g.AltitudeM}
}
