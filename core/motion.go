package core

import (
	"errors"
	"fmt"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// ErrPropagation is returned when an orbit cannot be propagated to the
// requested time.
var ErrPropagation = errors.New("orbit propagation failed")

// TargetModel yields the ECEF position of an observed target over time.
type TargetModel interface {
	PositionAt(t time.Time) (Vec3, error)
}

// StaticTarget is a target fixed in the ECEF frame, such as an ionospheric
// heating spot.
type StaticTarget struct {
	Position Vec3
}

// PositionAt returns the fixed position regardless of t.
func (s StaticTarget) PositionAt(time.Time) (Vec3, error) {
	return s.Position, nil
}

// OrbitalTarget uses a TLE and SGP4 to place a satellite in ECEF.
type OrbitalTarget struct {
	sat satellite.Satellite
}

// NewOrbitalTargetFromTLE constructs an orbital target from TLE lines.
func NewOrbitalTargetFromTLE(line1, line2 string) *OrbitalTarget {
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &OrbitalTarget{sat: sat}
}

// PositionAt propagates the satellite to t. go-satellite works in
// kilometres; positions are returned in metres.
func (m *OrbitalTarget) PositionAt(t time.Time) (Vec3, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	const kmToM = 1000.0
	pos := Vec3{
		X: posECEF.X * kmToM,
		Y: posECEF.Y * kmToM,
		Z: posECEF.Z * kmToM,
	}
	if !pos.IsFinite() || pos.Norm() == 0 {
		return Vec3{}, fmt.Errorf("%w at %s", ErrPropagation, t.Format(time.RFC3339))
	}
	return pos, nil
}
