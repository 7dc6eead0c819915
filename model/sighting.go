package model

import "time"

// Sighting is a calibrated look direction from one station toward a feature.
type Sighting struct {
	StationID  string
	AzimuthDeg float64 // clockwise from geographic north
	ZenithDeg  float64 // from the local vertical
}

// ElevationDeg is the sighting's angle above the horizon.
func (s Sighting) ElevationDeg() float64 { return 90 - s.ZenithDeg }

// Event pairs two simultaneous sightings of the same feature, for example
// the centroid of an artificial aurora blob in two camera frames.
type Event struct {
	ID        string
	Label     string
	Time      time.Time
	Primary   Sighting
	Secondary Sighting
}
