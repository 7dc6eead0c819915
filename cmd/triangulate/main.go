// Command triangulate locates features seen by two stations.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/signalsfoundry/sight-triangulator/internal/config"
	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/internal/observability"
	"github.com/spf13/cobra"
)

func main() {
	if err := NewCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "triangulate:", err)
		os.Exit(1)
	}
}

// NewCmd builds the command tree.
func NewCmd() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "triangulate [command] [flags]",
		Short:         "Locate a feature from two stations' lines of sight",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.PersistentFlags().String("log-level", "", "`<level>` debug, info, warn or error (default LOG_LEVEL or info)")
	rootCmd.PersistentFlags().String("log-format", "", "`<format>` text or json (default LOG_FORMAT or text)")
	rootCmd.PersistentFlags().String("log-file", "", "`<path>` write logs to a rotated file instead of stderr")

	rootCmd.AddCommand(
		newLocateCmd(),
		newSolveCmd(),
		newSimulateCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// newLogger layers the environment, the scenario logging section (if any)
// and the command-line flags, in increasing precedence. The closer releases
// the log file when one is configured.
func newLogger(cmd *cobra.Command, sc *config.Scenario) (logging.Logger, io.Closer) {
	cfg := logging.ConfigFromEnv()
	if sc != nil {
		cfg = sc.LoggerConfig(cfg)
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Format = v
	}
	if v, _ := cmd.Flags().GetString("log-file"); v != "" {
		cfg.File = v
	}
	cfg.Output = cmd.ErrOrStderr()
	return logging.Open(cfg)
}

// startTracing initialises tracing from the environment and returns the
// matching shutdown hook.
func startTracing(ctx context.Context, log logging.Logger) (func(), error) {
	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	return func() { observability.ShutdownWithTimeout(context.Background(), shutdown, log) }, nil
}
