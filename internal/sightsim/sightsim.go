// Package sightsim produces synthetic two-station sightings of a moving or
// fixed target. The generated events carry the true target position, which
// makes them useful both for rehearsing an observation campaign and as
// ground truth when checking the locator.
package sightsim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/model"
	"github.com/signalsfoundry/sight-triangulator/timectrl"
)

// ErrNoTarget is returned when a Generator has no target model.
var ErrNoTarget = errors.New("sightsim: target model is required")

// Observe returns the sighting of target from station and the target's
// elevation above the station horizon in degrees.
func Observe(station model.Station, target core.Vec3) (model.Sighting, float64) {
	az, za, _ := core.LookAngles(station.Location, target)
	return model.Sighting{
		StationID:  station.ID,
		AzimuthDeg: az,
		ZenithDeg:  za,
	}, 90 - za
}

// Observation is a generated event with the position it was derived from.
type Observation struct {
	Event model.Event
	Truth core.Vec3
}

// Generator emits events whenever both stations see the target above the
// elevation mask.
type Generator struct {
	Primary   model.Station
	Secondary model.Station
	Target    core.TargetModel

	MinElevationDeg float64
	IDPrefix        string
	Label           string
}

// Sample observes the target at the clock's current time. ok is false when
// either station sees it below the elevation mask.
func (g *Generator) Sample(clock timectrl.SimClock) (obs Observation, ok bool, err error) {
	if g.Target == nil {
		return Observation{}, false, ErrNoTarget
	}
	at := clock.Now()
	pos, err := g.Target.PositionAt(at)
	if err != nil {
		return Observation{}, false, fmt.Errorf("target position at %s: %w", at.Format(time.RFC3339), err)
	}

	primary, elP := Observe(g.Primary, pos)
	secondary, elS := Observe(g.Secondary, pos)
	if elP < g.MinElevationDeg || elS < g.MinElevationDeg {
		return Observation{}, false, nil
	}

	prefix := g.IDPrefix
	if prefix == "" {
		prefix = "sim"
	}
	return Observation{
		Event: model.Event{
			ID:        fmt.Sprintf("%s-%d", prefix, at.Unix()),
			Label:     g.Label,
			Time:      at,
			Primary:   primary,
			Secondary: secondary,
		},
		Truth: pos,
	}, true, nil
}

// Pass samples the target at every step of the sweep, reading the sample
// time from the sweep's clock.
func (g *Generator) Pass(ctx context.Context, sweep *timectrl.Sweep) ([]Observation, error) {
	if g.Target == nil {
		return nil, ErrNoTarget
	}

	var out []Observation
	err := sweep.Run(ctx, func(time.Time) error {
		obs, ok, err := g.Sample(sweep)
		if ok {
			out = append(out, obs)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
