package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roboforge/roboforge/internal/ailink"
	"github.com/roboforge/roboforge/internal/ailink/prompt"
	"github.com/roboforge/roboforge/internal/config"
	"github.com/roboforge/roboforge/internal/core/store"
	"github.com/roboforge/roboforge/internal/observability"
)

// checkStatus is the outcome of one diagnostic.
type checkStatus int

const (
	checkOK checkStatus = iota
	checkWarn
	checkFail
)

func (s checkStatus) icon() string {
	switch s {
	case checkOK:
		return "✅"
	case checkWarn:
		return "⚠️ "
	default:
		return "❌"
	}
}

// checkResult is what a diagnostic reports.
type checkResult struct {
	status checkStatus
	detail string
	hint   string
	fields []zap.Field
}

// doctorEnv is shared state for one doctor run. cfg is nil when loading failed.
type doctorEnv struct {
	cfg    *config.Config
	cfgErr error
}

type doctorCheck struct {
	name string
	run  func(ctx context.Context, env *doctorEnv) checkResult
}

var doctorChecks = []doctorCheck{
	{"Go version", checkGoVersion},
	{"Crucible access", checkCrucible},
	{"Config", checkConfig},
	{"Database", checkDatabase},
	{"Prompts", checkPrompts},
	{"OpenAI key", checkVendorKey},
	{"Nexar credentials", checkNexarCredentials},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the installation and suggest fixes for common issues.

No vendor requests are sent; use 'doctor api' or 'doctor connectivity' for that.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := observability.CLILogger
		name := binaryName()

		logger.Info("=== " + name + " doctor ===")
		logger.Info("")

		env := &doctorEnv{}
		env.cfg, env.cfgErr = config.Load(ctx)

		failed, warned := 0, 0
		for i, check := range doctorChecks {
			res := check.run(ctx, env)
			line := fmt.Sprintf("[%d/%d] Checking %s... %s %s", i+1, len(doctorChecks), check.name, res.status.icon(), res.detail)
			switch res.status {
			case checkOK:
				logger.Info(line, res.fields...)
			case checkWarn:
				warned++
				logger.Warn(line, res.fields...)
			default:
				failed++
				logger.Error(line, res.fields...)
			}
			if res.hint != "" {
				logger.Info("       " + res.hint)
			}
		}

		logger.Info("")
		switch {
		case failed > 0:
			logger.Error(fmt.Sprintf("❌ %d check(s) failed. Review the output above for details.", failed))
		case warned > 0:
			logger.Warn(fmt.Sprintf("⚠️  %d warning(s). %s will run with reduced functionality.", warned, name))
		default:
			logger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", name))
		}
		logger.Info("")
		logger.Info("=== End Diagnostics ===")

		if failed > 0 {
			return fmt.Errorf("%d diagnostic check(s) failed", failed)
		}
		return nil
	},
}

func checkGoVersion(_ context.Context, _ *doctorEnv) checkResult {
	v := runtime.Version()
	res := checkResult{detail: v, fields: []zap.Field{zap.String("go_version", v), zap.String("os", runtime.GOOS), zap.String("arch", runtime.GOARCH)}}
	if v < "go1.23" {
		res.status = checkWarn
		res.detail += " (recommended: go1.23+)"
	}
	return res
}

func checkCrucible(_ context.Context, _ *doctorEnv) checkResult {
	v := crucible.GetVersion()
	if v.Crucible == "" || v.Gofulmen == "" {
		return checkResult{status: checkFail, detail: "cannot read embedded crucible/gofulmen versions"}
	}
	return checkResult{
		detail: fmt.Sprintf("crucible v%s, gofulmen v%s", v.Crucible, v.Gofulmen),
		fields: []zap.Field{zap.String("crucible_version", v.Crucible), zap.String("gofulmen_version", v.Gofulmen)},
	}
}

func checkConfig(_ context.Context, env *doctorEnv) checkResult {
	path := config.DefaultConfigPath()
	if env.cfgErr != nil {
		return checkResult{status: checkFail, detail: env.cfgErr.Error(), hint: "Fix or remove the config file, or run 'doctor reset --config'."}
	}
	if !fileExists(path) {
		return checkResult{detail: "defaults (no config file)", hint: "Run 'doctor init' to write a starter config."}
	}
	return checkResult{detail: path, fields: []zap.Field{zap.String("config_path", path)}}
}

func checkDatabase(ctx context.Context, env *doctorEnv) checkResult {
	if env.cfg == nil {
		return checkResult{status: checkWarn, detail: "skipped (config not loaded)"}
	}

	location := storeLocation(env.cfg)
	st, err := openStore(ctx, env.cfg)
	if err != nil {
		return checkResult{status: checkFail, detail: fmt.Sprintf("%s (%v)", location, err)}
	}
	defer st.Close() //nolint:errcheck

	builds, err := st.ListBuilds(ctx)
	if err != nil {
		return checkResult{status: checkFail, detail: fmt.Sprintf("%s (cannot list builds: %v)", location, err)}
	}
	version, _ := st.GetMeta(ctx, store.MetaSchemaVersion)
	return checkResult{
		detail: fmt.Sprintf("%s, schema v%s, %d build(s)", location, version, len(builds)),
		fields: []zap.Field{zap.String("store_driver", st.Driver()), zap.Int("builds", len(builds))},
	}
}

func checkPrompts(_ context.Context, env *doctorEnv) checkResult {
	dir := ""
	if env.cfg != nil {
		dir = env.cfg.AILink.PromptsDir
	}
	registry, err := prompt.RegistryWithOverrides(dir)
	if err != nil {
		return checkResult{status: checkFail, detail: err.Error()}
	}
	for _, slug := range requiredPromptSlugs {
		if _, err := registry.Get(slug); err != nil {
			return checkResult{status: checkFail, detail: fmt.Sprintf("missing prompt %q", slug)}
		}
	}
	detail := fmt.Sprintf("%d loaded", len(registry.List()))
	if dir != "" {
		detail += " (overrides from " + dir + ")"
	}
	return checkResult{detail: detail}
}

var requiredPromptSlugs = []string{
	prompt.SlugArduinoCode, prompt.SlugPartsList, prompt.SlugCircuitSVG, prompt.SlugModel3D,
	prompt.SlugPreviewSVG, prompt.SlugWebSearch, prompt.SlugCodegen, prompt.SlugHealth,
}

func checkVendorKey(_ context.Context, env *doctorEnv) checkResult {
	if env.cfg == nil {
		return checkResult{status: checkWarn, detail: "skipped (config not loaded)"}
	}
	if strings.TrimSpace(env.cfg.AILink.APIKey) == "" {
		return checkResult{status: checkWarn, detail: "not configured", hint: "Set OPENAI_API_KEY; generation requires it."}
	}
	return checkResult{detail: "configured (" + env.cfg.AILink.DefaultModel + ")"}
}

func checkNexarCredentials(_ context.Context, env *doctorEnv) checkResult {
	if env.cfg == nil {
		return checkResult{status: checkWarn, detail: "skipped (config not loaded)"}
	}
	if strings.TrimSpace(env.cfg.Parts.ClientID) == "" || strings.TrimSpace(env.cfg.Parts.ClientSecret) == "" {
		return checkResult{status: checkWarn, detail: "not configured", hint: "Set NEXAR_CLIENT_ID and NEXAR_CLIENT_SECRET; parts search requires them."}
	}
	return checkResult{detail: "configured"}
}

var doctorAPICmd = &cobra.Command{
	Use:   "api",
	Short: "Send a minimal completion to verify the OpenAI key",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		a, err := loadApp(ctx, observability.CLILogger, appOptions{vendor: true})
		if err != nil {
			return err
		}
		defer a.Close()
		if err := requireVendorKey(a.cfg); err != nil {
			return err
		}

		start := time.Now()
		if !a.svc.CheckAPIHealth(ctx) {
			return fmt.Errorf("OpenAI health check failed after %s (run with --verbose for details)", time.Since(start).Round(time.Millisecond))
		}
		observability.CLILogger.Info("OpenAI API reachable",
			zap.String("model", a.cfg.AILink.DefaultModel),
			zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
		return nil
	},
}

var (
	doctorInitForce     bool
	doctorInitOpenAIKey string
	doctorResetConfig   bool
	doctorResetData     bool
	doctorResetAll      bool
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		apiKey := strings.TrimSpace(doctorInitOpenAIKey)
		if strings.EqualFold(apiKey, "prompt") {
			key, err := promptForValue(os.Stdin, os.Stdout, "Enter OpenAI API key (leave blank to skip): ")
			if err != nil {
				return err
			}
			apiKey = key
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		mode := os.FileMode(0644)
		if apiKey != "" {
			mode = 0600
		}

		if err := os.WriteFile(configPath, []byte(buildInitConfig(apiKey)), mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration status and paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.CLILogger
		configPath := config.DefaultConfigPath()

		logger.Info("Configuration:")
		logger.Info(fmt.Sprintf("  Config file:     %s (%s)", configPath, existenceStatus(fileExists(configPath))))
		for _, dir := range []struct{ label, path string }{
			{"Data directory: ", config.DefaultDataDir()},
			{"Cache directory:", config.DefaultCacheDir()},
		} {
			if dir.path == "" {
				logger.Info("  " + dir.label + " (not resolved)")
				continue
			}
			logger.Info(fmt.Sprintf("  %s %s (%s)", dir.label, dir.path, existenceStatus(fileExists(dir.path))))
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
			return nil
		}
		logger.Info("  Database:        " + storeLocation(cfg))

		logger.Info("")
		logger.Info("Environment:")
		for _, name := range vendorEnvVars {
			logger.Info(fmt.Sprintf("  %-32s %s", name+":", envStatus(name)))
		}

		logger.Info("")
		logger.Info("Effective Settings:")
		logger.Info(fmt.Sprintf("  ailink.base_url:        %s", cfg.AILink.BaseURL))
		logger.Info(fmt.Sprintf("  ailink.default_model:   %s", cfg.AILink.DefaultModel))
		logger.Info(fmt.Sprintf("  ailink.image_model:     %s", cfg.AILink.ImageModel))
		logger.Info(fmt.Sprintf("  ailink.min_interval:    %s", cfg.AILink.MinInterval))
		logger.Info(fmt.Sprintf("  ailink.max_attempts:    %d", cfg.AILink.MaxAttempts))
		logger.Info(fmt.Sprintf("  cache.generation_ttl:   %s", cfg.Cache.GenerationTTL))
		logger.Info(fmt.Sprintf("  cache.parts_ttl:        %s", cfg.Cache.PartsTTL))
		logger.Info(fmt.Sprintf("  workers:                %d", cfg.Workers))
		return nil
	},
}

// vendorEnvVars are the credentials read outside the ROBOFORGE_ prefix, plus
// the prefixed key that overrides them.
var vendorEnvVars = []string{"OPENAI_API_KEY", "ROBOFORGE_AILINK_API_KEY", "NEXAR_CLIENT_ID", "NEXAR_CLIENT_SECRET"}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset user configuration and/or data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if doctorResetAll {
			doctorResetConfig = true
			doctorResetData = true
		}

		if !doctorResetConfig && !doctorResetData {
			return fmt.Errorf("specify --config, --data, or --all")
		}

		if doctorResetData {
			// Resolve the store before the config file goes away.
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Store.URL != "" {
				return fmt.Errorf("remote store configured; database reset is not supported")
			}
			absPath, _ := filepath.Abs(cfg.Store.Path)
			if err := removeIfExists(absPath, "Database"); err != nil {
				return fmt.Errorf("remove database: %w", err)
			}
		}

		if doctorResetConfig {
			configPath := config.DefaultConfigPath()
			if configPath == "" {
				observability.CLILogger.Warn("Config path not resolved; skipping config reset")
			} else if err := removeIfExists(configPath, "Config"); err != nil {
				return fmt.Errorf("remove config file: %w", err)
			}
		}

		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if cfgFile != "" {
			configPath = cfgFile
		}
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", configPath)
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		if problems := validateSettings(cfg); len(problems) > 0 {
			for _, p := range problems {
				observability.CLILogger.Warn(p)
			}
			return fmt.Errorf("%d invalid setting(s) in %s", len(problems), configPath)
		}

		observability.CLILogger.Info("Config is valid", zap.String("path", configPath))
		return nil
	},
}

// validateSettings reports values that load cleanly but cannot work.
func validateSettings(cfg *config.Config) []string {
	var problems []string
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", cfg.Server.Port))
	}
	if cfg.AILink.MaxAttempts < 1 {
		problems = append(problems, "ailink.max_attempts must be at least 1")
	}
	if cfg.AILink.MinInterval < 0 {
		problems = append(problems, "ailink.min_interval must not be negative")
	}
	if cfg.Workers < 0 {
		problems = append(problems, "workers must not be negative")
	}
	if cfg.Cache.GenerationTTL < 0 || cfg.Cache.PartsTTL < 0 {
		problems = append(problems, "cache TTLs must not be negative")
	}
	if cfg.AILink.PromptsDir != "" {
		if info, err := os.Stat(cfg.AILink.PromptsDir); err != nil || !info.IsDir() {
			problems = append(problems, fmt.Sprintf("ailink.prompts_dir %q is not a directory", cfg.AILink.PromptsDir))
		}
	}
	return problems
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd, doctorConfigCmd, doctorResetCmd, doctorValidateCmd, doctorAPICmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitOpenAIKey, "openai-key", "", "set the OpenAI API key or use 'prompt' to enter")

	doctorResetCmd.Flags().BoolVar(&doctorResetConfig, "config", false, "remove user config file")
	doctorResetCmd.Flags().BoolVar(&doctorResetData, "data", false, "remove local database")
	doctorResetCmd.Flags().BoolVar(&doctorResetAll, "all", false, "remove config and data")

	doctorAPICmd.Flags().Duration("timeout", 30*time.Second, "overall timeout")
}

func binaryName() string {
	if identity := GetAppIdentity(); identity != nil && identity.BinaryName != "" {
		return identity.BinaryName
	}
	return "roboforge"
}

// storeLocation describes where the store lives without opening it.
func storeLocation(cfg *config.Config) string {
	if cfg.Store.URL != "" {
		return cfg.Store.URL + " (remote)"
	}
	absPath, _ := filepath.Abs(cfg.Store.Path)
	info, err := os.Stat(absPath)
	switch {
	case err == nil:
		return fmt.Sprintf("%s (%s)", absPath, formatFileSize(info.Size()))
	case os.IsNotExist(err):
		return absPath + " (not created yet)"
	default:
		return fmt.Sprintf("%s (error: %v)", absPath, err)
	}
}

func removeIfExists(path, label string) error {
	err := os.Remove(path)
	switch {
	case err == nil:
		observability.CLILogger.Info(label+" removed", zap.String("path", path))
		return nil
	case os.IsNotExist(err):
		observability.CLILogger.Info(label+" already removed", zap.String("path", path))
		return nil
	default:
		return err
	}
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func buildInitConfig(apiKey string) string {
	lines := []string{
		"# roboforge config - created by 'roboforge doctor init'",
		"server:",
		"  host: localhost",
		"  port: 8080",
		"ailink:",
		"  base_url: " + ailink.DefaultBaseURL,
		"  default_model: " + ailink.DefaultModel,
		"  image_model: " + ailink.DefaultImageModel,
		"  min_interval: " + ailink.DefaultMinInterval.String(),
		fmt.Sprintf("  max_attempts: %d", ailink.DefaultMaxAttempts),
	}

	if strings.TrimSpace(apiKey) != "" {
		lines = append(lines, fmt.Sprintf("  api_key: %q", apiKey))
	} else {
		lines = append(lines, "  # api_key: \"\"  # or set OPENAI_API_KEY")
	}

	lines = append(lines,
		"parts:",
		"  # client_id / client_secret, or set NEXAR_CLIENT_ID / NEXAR_CLIENT_SECRET",
		"  limit: 10",
		"cache:",
		"  generation_ttl: 0s",
		"  parts_ttl: 24h",
	)

	return strings.Join(lines, "\n") + "\n"
}

func promptForValue(in io.Reader, out io.Writer, label string) (string, error) {
	if _, err := fmt.Fprint(out, label); err != nil {
		return "", err
	}
	value, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}
