package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/sight-triangulator/internal/config"
	"github.com/signalsfoundry/sight-triangulator/internal/locate"
	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/internal/observability"
	"github.com/signalsfoundry/sight-triangulator/internal/service"
	"github.com/signalsfoundry/sight-triangulator/kb"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve --scenario <file.yaml> [flags]",
		Short: "Serve the triangulation gRPC API and Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE:  doServe,
	}
	cmd.Flags().StringP("scenario", "s", "", "`<path>` to a scenario YAML; its stations seed the catalog")
	cmd.Flags().String("grpc-addr", "", "`<addr>` gRPC listen address (default from scenario or "+config.DefaultGRPCAddr+")")
	cmd.Flags().String("metrics-addr", "", "`<addr>` HTTP address for /metrics (default from scenario or "+config.DefaultMetricsAddr+")")
	return cmd
}

func doServe(cmd *cobra.Command, _ []string) error {
	sc := &config.Scenario{}
	if path, _ := cmd.Flags().GetString("scenario"); path != "" {
		var err error
		if sc, err = config.Load(path); err != nil {
			return err
		}
	} else {
		sc.ApplyDefaults()
	}
	if v, _ := cmd.Flags().GetString("grpc-addr"); v != "" {
		sc.Server.GRPCAddr = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		sc.Server.MetricsAddr = v
	}

	log, logFile := newLogger(cmd, sc)
	defer logFile.Close()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopTracing, err := startTracing(ctx, log)
	if err != nil {
		return err
	}
	defer stopTracing()

	collector, err := observability.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("initialise metrics collector: %w", err)
	}

	catalog := kb.NewCatalog()
	if err := sc.Populate(catalog); err != nil {
		return err
	}

	srv := service.NewServer(catalog, locate.New(catalog, sc.LocateOptions(), log, collector), collector, log)
	defer srv.Close()

	grpcServer := service.NewGRPCServer(log, collector)
	service.RegisterTriangulationServer(grpcServer, srv)

	lis, err := net.Listen("tcp", sc.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", sc.Server.GRPCAddr, err)
	}

	metricsSrv := serveMetrics(ctx, sc.Server.MetricsAddr, collector, log)

	serveErr := make(chan error, 1)
	go func() { serveErr <- grpcServer.Serve(lis) }()
	log.Info(ctx, "serving triangulation gRPC",
		logging.String("addr", lis.Addr().String()),
		logging.Int("stations", catalog.Len()),
	)

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down")
		grpcServer.GracefulStop()
		err = nil
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return err
}

func serveMetrics(ctx context.Context, addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
