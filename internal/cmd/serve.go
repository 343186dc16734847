package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roboforge/roboforge/internal/config"
	"github.com/roboforge/roboforge/internal/core/store"
	"github.com/roboforge/roboforge/internal/metrics"
	errwrap "github.com/roboforge/roboforge/internal/errors"
	"github.com/roboforge/roboforge/internal/observability"
	"github.com/roboforge/roboforge/internal/server"
	"github.com/roboforge/roboforge/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

// storeHealthChecker pings the build store.
type storeHealthChecker struct {
	st *store.Store
}

func (c storeHealthChecker) CheckHealth(ctx context.Context) error {
	if err := c.st.CheckHealth(ctx); err != nil {
		return errwrap.WrapDatabaseError(ctx, err, "store ping failed")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server that backs the web front end.

The /api routes generate artifacts, search parts and manage build
configurations. Health, version and metrics endpoints are served alongside.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (log level only; restart for the rest)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		bootCfg, err := config.Load(ctx, serveOverrides(cmd))
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "config load failed")
		}
		observability.InitServerLogger(serverLogOptions(identity.BinaryName, namespace, bootCfg))
		logger := observability.ServerLogger

		a, err := loadApp(ctx, logger, appOptions{
			store:     true,
			vendor:    true,
			overrides: serveOverrides(cmd),
		})
		if err != nil {
			return errwrap.WrapInternal(ctx, err, "startup failed")
		}
		cfg := a.cfg

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = observability.DefaultMetricsPort
		}
		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, metricsPort, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				a.Close()
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
			metrics.SetServerStartTime(time.Now())
		} else {
			logger.Info("Metrics disabled; /metrics will answer 503")
		}

		if cfg.AILink.APIKey == "" {
			logger.Warn("No OpenAI API key configured; generation endpoints will fail")
		}
		if !a.parts.Configured() {
			logger.Warn("Nexar credentials missing; parts search will fail")
		}

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", metricsPort),
			zap.String("store_driver", a.store.Driver()))

		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("store", storeHealthChecker{st: a.store})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
		hm.RegisterChecker("app_identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})
		if cfg.Health.CheckVendor {
			hm.RegisterSoftChecker("vendor", handlers.ProbeFunc(a.svc.CheckAPIHealth))
		}

		handlers.SetAppIdentity(identity)
		srv := server.New(cfg.Server, &handlers.API{
			Generator: a.svc,
			Forge:     a.forge,
			Parts:     a.parts,
			Builds:    a.store,
			AppName:   cfg.App.Name,
			BannerURL: cfg.App.BannerURL,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: HTTP server, store, metrics exporter, logger.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.StopMetrics(); err != nil {
				logger.Warn("Failed to stop metrics exporter", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Closing store...")
			logStoreClose(logger, a.store)
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: attempting config reload")

			reloaded, err := config.Load(ctx, serveOverrides(cmd))
			if err != nil {
				logger.Error("Failed to reload config", zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			if reloaded.Logging != cfg.Logging {
				observability.InitServerLogger(serverLogOptions(identity.BinaryName, namespace, reloaded))
				logger.Info("Logging change applies to new loggers; restart to apply everywhere",
					zap.String("level", reloaded.Logging.Level))
			}
			logger.Info("Configuration reloaded")
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			logger.Info("Starting HTTP server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(ctx, err, "server error")
		}

		return nil
	},
}

// serveOverrides maps explicitly set --host/--port flags onto config keys.
func serveOverrides(cmd *cobra.Command) map[string]any {
	keys := map[string]any{}
	if cmd.Flags().Changed("host") {
		keys["host"] = serverHost
	}
	if cmd.Flags().Changed("port") {
		keys["port"] = serverPort
	}
	if len(keys) == 0 {
		return nil
	}
	return map[string]any{"server": keys}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")
}

func serverLogOptions(service, namespace string, cfg *config.Config) observability.ServerLogOptions {
	return observability.ServerLogOptions{
		Service:   service,
		Level:     cfg.Logging.Level,
		Profile:   cfg.Logging.Profile,
		Namespace: namespace,
		Fields:    map[string]any{"component": "api"},
	}
}
