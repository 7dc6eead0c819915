package main

import (
	"fmt"

	"github.com/signalsfoundry/sight-triangulator/internal/config"
	"github.com/signalsfoundry/sight-triangulator/internal/locate"
	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/internal/report"
	"github.com/signalsfoundry/sight-triangulator/kb"
	"github.com/spf13/cobra"
)

func newLocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locate --scenario <file.yaml> [flags]",
		Short: "Locate every event of a scenario file",
		Args:  cobra.NoArgs,
		RunE:  doLocate,
	}
	cmd.Flags().StringP("scenario", "s", "", "`<path>` to the scenario YAML")
	cmd.Flags().StringP("format", "f", "table", "`<format>` table, json, csv or markdown")
	cmd.Flags().IntP("workers", "w", 0, "`<n>` concurrent solves (default from scenario)")
	cmd.Flags().Bool("accept-behind", false, "keep solutions that put the target behind a station")
	cmd.Flags().Bool("strict", false, "exit with an error if any event fails")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func doLocate(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("scenario")
	formatFlag, _ := cmd.Flags().GetString("format")
	workers, _ := cmd.Flags().GetInt("workers")
	strict, _ := cmd.Flags().GetBool("strict")

	format, err := report.ParseFormat(formatFlag)
	if err != nil {
		return err
	}

	sc, err := config.Load(path)
	if err != nil {
		return err
	}
	log, logFile := newLogger(cmd, sc)
	defer logFile.Close()
	ctx := cmd.Context()

	stopTracing, err := startTracing(ctx, log)
	if err != nil {
		return err
	}
	defer stopTracing()

	catalog := kb.NewCatalog()
	if err := sc.Populate(catalog); err != nil {
		return err
	}

	opts := sc.LocateOptions()
	if cmd.Flags().Changed("accept-behind") {
		opts.AcceptBehind, _ = cmd.Flags().GetBool("accept-behind")
	}

	events := sc.ModelEvents()
	log.Info(ctx, "locating scenario",
		logging.String("path", path),
		logging.Int("stations", catalog.Len()),
		logging.Int("events", len(events)),
	)

	results, err := locate.New(catalog, opts, log, nil).LocateAll(ctx, events, workers)
	if err != nil {
		return err
	}
	if err := report.WriteFixes(cmd.OutOrStdout(), format, report.Rows(results)); err != nil {
		return err
	}

	if s := locate.Summarize(results); strict && s.Failed > 0 {
		return fmt.Errorf("%d of %d events failed", s.Failed, s.Total)
	}
	return nil
}
