package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/internal/locate"
	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/internal/report"
	"github.com/signalsfoundry/sight-triangulator/internal/sightsim"
	"github.com/signalsfoundry/sight-triangulator/kb"
	"github.com/signalsfoundry/sight-triangulator/model"
	"github.com/signalsfoundry/sight-triangulator/timectrl"
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate --tle1 <line> --tle2 <line> --station1 lat,lon,alt --station2 lat,lon,alt [flags]",
		Short: "Triangulate synthetic sightings of a satellite pass and compare with its orbit",
		Args:  cobra.NoArgs,
		RunE:  doSimulate,
	}
	cmd.Flags().String("tle1", "", "first line of the satellite TLE")
	cmd.Flags().String("tle2", "", "second line of the satellite TLE")
	cmd.Flags().String("station1", "", "`lat,lon[,alt]` of the first station")
	cmd.Flags().String("station2", "", "`lat,lon[,alt]` of the second station")
	cmd.Flags().String("start", "", "`<RFC3339>` start of the pass (default now)")
	cmd.Flags().Duration("duration", 10*time.Minute, "length of the pass")
	cmd.Flags().Duration("step", 30*time.Second, "sample interval")
	cmd.Flags().Float64("min-elevation", 10, "`<deg>` elevation mask applied at both stations")
	cmd.Flags().Float64("noise-deg", 0, "`<deg>` standard deviation of Gaussian noise added to each angle")
	cmd.Flags().Uint64("seed", 1, "noise seed")
	cmd.Flags().StringP("format", "f", "table", "`<format>` table, json, csv or markdown")
	cmd.Flags().IntP("workers", "w", 4, "`<n>` concurrent solves")
	for _, name := range []string{"tle1", "tle2", "station1", "station2"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func doSimulate(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	tle1, _ := flags.GetString("tle1")
	tle2, _ := flags.GetString("tle2")
	startFlag, _ := flags.GetString("start")
	duration, _ := flags.GetDuration("duration")
	step, _ := flags.GetDuration("step")
	minElevation, _ := flags.GetFloat64("min-elevation")
	noiseDeg, _ := flags.GetFloat64("noise-deg")
	seed, _ := flags.GetUint64("seed")
	formatFlag, _ := flags.GetString("format")
	workers, _ := flags.GetInt("workers")

	format, err := report.ParseFormat(formatFlag)
	if err != nil {
		return err
	}

	start := time.Now().UTC().Truncate(time.Second)
	if startFlag != "" {
		if start, err = time.Parse(time.RFC3339, startFlag); err != nil {
			return fmt.Errorf("--start: %w", err)
		}
	}
	sweep := timectrl.NewSweep(start, step, duration)
	if err := sweep.Validate(); err != nil {
		return err
	}

	v1, _ := flags.GetString("station1")
	v2, _ := flags.GetString("station2")
	primary, err := stationFlag("S1", v1)
	if err != nil {
		return err
	}
	secondary, err := stationFlag("S2", v2)
	if err != nil {
		return err
	}

	log, logFile := newLogger(cmd, nil)
	defer logFile.Close()
	ctx := cmd.Context()
	stopTracing, err := startTracing(ctx, log)
	if err != nil {
		return err
	}
	defer stopTracing()

	gen := &sightsim.Generator{
		Primary:         primary,
		Secondary:       secondary,
		Target:          core.NewOrbitalTargetFromTLE(tle1, tle2),
		MinElevationDeg: minElevation,
		IDPrefix:        "pass",
	}
	obs, err := gen.Pass(ctx, sweep)
	if err != nil {
		return err
	}
	log.Info(ctx, "pass sampled",
		logging.Int("samples", len(sweep.Times())),
		logging.Int("visible", len(obs)),
	)

	events := make([]model.Event, len(obs))
	rng := rand.New(rand.NewPCG(seed, seed))
	for i, o := range obs {
		events[i] = o.Event
		if noiseDeg > 0 {
			perturb(&events[i].Primary, rng, noiseDeg)
			perturb(&events[i].Secondary, rng, noiseDeg)
		}
	}

	catalog := kb.NewCatalog()
	for _, st := range []model.Station{primary, secondary} {
		if err := catalog.AddStation(st); err != nil {
			return err
		}
	}

	results, err := locate.New(catalog, locate.Options{Workers: workers}, log, nil).LocateAll(ctx, events, workers)
	if err != nil {
		return err
	}

	rows := report.Rows(results)
	for i := range rows {
		if !rows[i].Fix.Solved {
			continue
		}
		rows[i].TruthErrorM = rows[i].Fix.Solution.Midpoint.DistanceTo(obs[i].Truth)
		rows[i].HasTruth = true
	}
	return report.WriteFixes(cmd.OutOrStdout(), format, rows)
}

func perturb(s *model.Sighting, rng *rand.Rand, sigmaDeg float64) {
	s.AzimuthDeg += rng.NormFloat64() * sigmaDeg
	s.ZenithDeg += rng.NormFloat64() * sigmaDeg
	// Keep the zenith angle inside its valid range.
	switch {
	case s.ZenithDeg < 0:
		s.ZenithDeg = -s.ZenithDeg
		s.AzimuthDeg += 180
	case s.ZenithDeg > 180:
		s.ZenithDeg = 360 - s.ZenithDeg
		s.AzimuthDeg += 180
	}
}
