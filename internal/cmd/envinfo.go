package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/roboforge/roboforge/internal/config"
	"github.com/roboforge/roboforge/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display comprehensive environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()
		logger := observability.CLILogger

		logger.Info("=== " + binaryName() + " Environment Information ===")
		logger.Info("")

		// Application Info
		identity := GetAppIdentity()
		logger.Info("Application:")
		logger.Info("  Name:       " + identity.BinaryName)
		logger.Info("  Version:    " + versionInfo.Version)
		logger.Info("  Commit:     " + versionInfo.Commit)
		logger.Info("  Built:      " + versionInfo.BuildDate)
		logger.Info("")

		// SSOT Info
		logger.Info("SSOT:")
		logger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		logger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		logger.Info("")

		// Runtime Info
		logger.Info("Runtime:")
		logger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		logger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		logger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		logger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		logger.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
			return
		}

		// Configuration
		logger.Info("Configuration:")
		logger.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		logger.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		logger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		logger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		logger.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			logger.Info("  DB URL:         "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			logger.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		logger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		logger.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		logger.Info("")

		logger.Info("Vendor:")
		logger.Info("  Base URL:         "+cfg.AILink.BaseURL, zap.String("base_url", cfg.AILink.BaseURL))
		logger.Info("  Text Model:       "+cfg.AILink.DefaultModel, zap.String("model", cfg.AILink.DefaultModel))
		logger.Info("  Image Model:      "+cfg.AILink.ImageModel, zap.String("image_model", cfg.AILink.ImageModel))
		logger.Info("  Min Interval:     "+cfg.AILink.MinInterval.String(), zap.Duration("min_interval", cfg.AILink.MinInterval))
		logger.Info(fmt.Sprintf("  Max Attempts:     %d", cfg.AILink.MaxAttempts), zap.Int("max_attempts", cfg.AILink.MaxAttempts))
		logger.Info("  API Key:          " + observability.Redact(cfg.AILink.APIKey))
		if cfg.AILink.PromptsDir != "" {
			logger.Info("  Prompts Dir:      " + cfg.AILink.PromptsDir)
		}
		logger.Info("")

		logger.Info("Parts Search:")
		logger.Info("  Token URL:        " + cfg.Parts.TokenURL)
		logger.Info("  GraphQL URL:      " + cfg.Parts.GraphQLURL)
		logger.Info("  Client ID:        " + setStatus(cfg.Parts.ClientID))
		logger.Info("  Client Secret:    " + observability.Redact(cfg.Parts.ClientSecret))
		logger.Info(fmt.Sprintf("  Result Limit:     %d", cfg.Parts.Limit))
		logger.Info("")

		logger.Info("Caching:")
		logger.Info("  Generation TTL:   " + cfg.Cache.GenerationTTL.String())
		logger.Info("  Parts TTL:        " + cfg.Cache.PartsTTL.String())
		logger.Info(fmt.Sprintf("  Forge Workers:    %d", cfg.Workers))
		logger.Info("")

		logger.Info("=== End Environment Information ===")
	},
}

func setStatus(value string) string {
	if strings.TrimSpace(value) != "" {
		return "(set)"
	}
	return "(not set)"
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
