package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/model"
)

// parseFloats splits a comma-separated list of want numbers, or want-1 when
// optional is set.
func parseFloats(s string, want int, optional bool) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != want && !(optional && len(parts) == want-1) {
		return nil, fmt.Errorf("expected %d comma-separated values, got %q", want, s)
	}
	out := make([]float64, want)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d of %q: %w", i+1, s, err)
		}
		out[i] = v
	}
	return out, nil
}

// parseGeodetic reads "lat,lon[,alt]" in degrees and metres.
func parseGeodetic(s string) (core.Geodetic, error) {
	v, err := parseFloats(s, 3, true)
	if err != nil {
		return core.Geodetic{}, err
	}
	g := core.Geodetic{LatitudeDeg: v[0], LongitudeDeg: v[1], AltitudeM: v[2]}
	if err := g.Validate(); err != nil {
		return core.Geodetic{}, err
	}
	return g, nil
}

// parseSight reads "azimuth,zenith" in degrees.
func parseSight(s string) (az, za float64, err error) {
	v, err := parseFloats(s, 2, false)
	if err != nil {
		return 0, 0, err
	}
	return v[0], v[1], nil
}

func stationFlag(id, value string) (model.Station, error) {
	loc, err := parseGeodetic(value)
	if err != nil {
		return model.Station{}, fmt.Errorf("station %s: %w", id, err)
	}
	return model.Station{ID: id, Name: id, Location: loc}, nil
}
