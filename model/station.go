package model

import "github.com/signalsfoundry/sight-triangulator/core"

// Station is a fixed optical observer (camera, radar dish, ...).
type Station struct {
	ID       string
	Name     string
	Location core.Geodetic
}

// ECEF returns the station position in ECEF metres.
func (s Station) ECEF() core.Vec3 {
	return core.GeodeticToECEF(s.Location)
}
