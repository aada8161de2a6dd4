package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pagewire/pagewire/internal/config"
	"github.com/pagewire/pagewire/internal/observability"
	"github.com/pagewire/pagewire/internal/server"
	"github.com/pagewire/pagewire/internal/server/handlers"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mock API server",
		Long: `Run a local mock of the document API with deterministic fixtures, cursor
pagination and simulated rate limiting.

Throttling:
  --throttle-every N   answer every Nth API request with 429 and Retry-After
  --limit N            allow N API requests per window, then 429 until reset

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			observability.InitServerLogger(config.AppName, cfg.Logging.Level, config.AppName)
			logger := observability.ServerLogger

			handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
			srv := server.New(server.Options{
				Server:   cfg.Server,
				Mock:     cfg.Mock,
				Registry: observability.NewRegistry(),
			})

			logger.Info("Initializing mock API server",
				zap.String("version", versionInfo.Version),
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port),
				zap.Int("items", cfg.Mock.Items),
				zap.Int("throttle_every", cfg.Mock.ThrottleEvery),
				zap.Int("limit", cfg.Mock.Limit),
				zap.Duration("window", cfg.Mock.Window))

			shutdownTimeout := cfg.Server.ShutdownTimeout
			if shutdownTimeout <= 0 {
				shutdownTimeout = 10 * time.Second
			}

			// Handlers run LIFO: the server stops before the logger flushes.
			signals.OnShutdown(func(ctx context.Context) error {
				if err := logger.Sync(); err != nil {
					logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
				}
				return nil
			})
			signals.OnShutdown(func(ctx context.Context) error {
				shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
				Window:  2 * time.Second,
				Message: "Press Ctrl+C again within 2 seconds to force quit",
			}); err != nil {
				logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
			}

			errChan := make(chan error, 2)
			go func() {
				errChan <- srv.Start()
			}()
			go func() {
				if err := signals.Listen(cmd.Context()); err != nil {
					logger.Error("Signal handler error", zap.Error(err))
					errChan <- err
				}
			}()

			// Start returns nil once a signal has shut the server down.
			return <-errChan
		},
	}

	flags := cmd.Flags()
	flags.String("host", "", "listen host (default from config)")
	flags.IntP("port", "p", 0, "listen port (default from config)")
	flags.Int("items", 0, "fixture items per list")
	flags.Int("throttle-every", 0, "answer every Nth request with 429")
	flags.Duration("retry-after", 0, "Retry-After sent with every-Nth 429s")
	flags.Int("limit", 0, "requests allowed per window (0 = unlimited)")
	bindConfigKey(flags, "host", "server.host")
	bindConfigKey(flags, "port", "server.port")
	bindConfigKey(flags, "items", "mock.items")
	bindConfigKey(flags, "throttle-every", "mock.throttle_every")
	bindConfigKey(flags, "retry-after", "mock.retry_after")
	bindConfigKey(flags, "limit", "mock.limit")
	return cmd
}
