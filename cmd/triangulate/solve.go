package main

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/internal/report"
	"github.com/spf13/cobra"
)

func newSolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solve --station1 lat,lon,alt --sight1 az,za --station2 lat,lon,alt --sight2 az,za",
		Short: "Triangulate a single pair of sightings",
		Args:  cobra.NoArgs,
		RunE:  doSolve,
	}
	cmd.Flags().String("station1", "", "`lat,lon[,alt]` of the first station (degrees, metres)")
	cmd.Flags().String("sight1", "", "`az,za` seen from the first station (degrees)")
	cmd.Flags().String("station2", "", "`lat,lon[,alt]` of the second station")
	cmd.Flags().String("sight2", "", "`az,za` seen from the second station")
	cmd.Flags().StringP("format", "f", "table", "`<format>` table, json, csv or markdown")
	cmd.Flags().Bool("accept-behind", false, "print the solution even if the target is behind a station")
	for _, name := range []string{"station1", "sight1", "station2", "sight2"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func doSolve(cmd *cobra.Command, _ []string) error {
	formatFlag, _ := cmd.Flags().GetString("format")
	acceptBehind, _ := cmd.Flags().GetBool("accept-behind")
	format, err := report.ParseFormat(formatFlag)
	if err != nil {
		return err
	}

	var (
		origins    [2]core.Vec3
		directions [2]core.Vec3
	)
	for i := range 2 {
		stationFlagName := fmt.Sprintf("station%d", i+1)
		sightFlagName := fmt.Sprintf("sight%d", i+1)
		stationValue, _ := cmd.Flags().GetString(stationFlagName)
		sightValue, _ := cmd.Flags().GetString(sightFlagName)

		loc, err := parseGeodetic(stationValue)
		if err != nil {
			return fmt.Errorf("--%s: %w", stationFlagName, err)
		}
		az, za, err := parseSight(sightValue)
		if err != nil {
			return fmt.Errorf("--%s: %w", sightFlagName, err)
		}
		dir, err := core.LineOfSight(loc, az, za)
		if err != nil {
			return fmt.Errorf("--%s: %w", sightFlagName, err)
		}
		origins[i] = core.GeodeticToECEF(loc)
		directions[i] = dir
	}

	log, logFile := newLogger(cmd, nil)
	defer logFile.Close()
	sol, err := core.Triangulate(origins[0], directions[0], origins[1], directions[1], core.DefaultOptions())
	switch {
	case err == nil:
	case errors.Is(err, core.ErrTargetBehindObserver) && acceptBehind:
		log.Warn(cmd.Context(), "target behind observer; printing anyway", logging.Err(err))
	default:
		return err
	}
	return report.WriteSolution(cmd.OutOrStdout(), format, sol)
}
