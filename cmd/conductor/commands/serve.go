package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/internal/diagnostics"
	"github.com/xraph/conductor/logger"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Initialize the manifest and serve the diagnostics API",
		Long: `Initialize every service in the manifest and serve the diagnostics HTTP API
until interrupted. On SIGINT or SIGTERM the server stops and every service is
shut down in reverse dependency order.

Endpoints: /health, /graph, /report, /order, /states, /services/{id},
/services/{id}/restart and /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.load()
			if err != nil {
				return err
			}

			if address != "" {
				s.config.Diagnostics.Address = address
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c := s.conductor
			l := c.Logger()

			defer func() { _ = s.conductor.Dispose(context.Background()) }()

			report, err := c.InitializeAll(ctx)
			if err != nil {
				return err
			}

			if !report.Success {
				l.Warn("some services failed to initialize",
					logger.Strings("failed", identities(report.PerService.With(conductor.StatusFailed))),
					logger.Strings("skipped", identities(report.PerService.With(conductor.StatusSkipped))),
				)
			}

			server := diagnostics.NewServer(s.config.Diagnostics, c.Orchestrator(), c.Metrics(), l.Named("diagnostics"))

			serveErr := server.Start(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Orchestrator.ShutdownTimeout+s.config.Diagnostics.ShutdownTimeout)
			defer cancel()

			if err := c.Dispose(shutdownCtx); err != nil {
				l.Error("shutdown finished with failures", logger.Error(err))
			}

			return serveErr
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "listen address (overrides diagnostics.address)")

	return cmd
}
