// Package config provides centralized configuration management for ROBO Forge.
// Defaults are registered on a viper instance, overlaid by the optional YAML
// file, ROBOFORGE_* environment variables and runtime overrides, then decoded
// into Config with mapstructure.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/roboforge/roboforge/internal/ailink"
	"github.com/roboforge/roboforge/internal/appid"
)

const (
	DefaultNexarTokenURL   = "https://identity.nexar.com/connect/token"
	DefaultNexarGraphQLURL = "https://api.nexar.com/graphql"
	DefaultAppName         = "ROBO Forge AI"
	DefaultBannerURL       = "/banner.mp4"
)

var (
	// appConfig holds the current application configuration
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity

	configFile string
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetConfigFile pins the YAML file Load reads. Empty restores discovery.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = strings.TrimSpace(path)
}

// Load resolves the configuration. It is safe to call more than once.
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	v := viper.New()
	SetDefaults(v)

	path, explicit := resolveConfigFile()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if envOverrides == nil {
		envOverrides = map[string]any{}
	}
	applyVendorEnvFallbacks(envOverrides)

	for _, overrides := range append([]map[string]any{envOverrides}, runtimeOverrides...) {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to merge config overrides: %w", err)
		}
	}

	cfg, err := decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	setConfig(cfg)
	return cfg, nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("cache.generation_ttl", "0s")
	v.SetDefault("cache.parts_ttl", "1h")

	v.SetDefault("ailink.base_url", ailink.DefaultBaseURL)
	v.SetDefault("ailink.api_key", "")
	v.SetDefault("ailink.default_model", ailink.DefaultModel)
	v.SetDefault("ailink.image_model", ailink.DefaultImageModel)
	v.SetDefault("ailink.default_timeout", "0s")
	v.SetDefault("ailink.min_interval", ailink.DefaultMinInterval.String())
	v.SetDefault("ailink.max_attempts", ailink.DefaultMaxAttempts)
	v.SetDefault("ailink.prompts_dir", "")
	v.SetDefault("ailink.debug.capture_raw_enabled", false)
	v.SetDefault("ailink.debug.capture_raw_max_bytes", 4096)
	v.SetDefault("ailink.debug.trace_file", "")

	v.SetDefault("parts.token_url", DefaultNexarTokenURL)
	v.SetDefault("parts.graphql_url", DefaultNexarGraphQLURL)
	v.SetDefault("parts.client_id", "")
	v.SetDefault("parts.client_secret", "")
	v.SetDefault("parts.limit", 10)
	v.SetDefault("parts.timeout", "20s")

	v.SetDefault("app.name", DefaultAppName)
	v.SetDefault("app.banner_url", DefaultBannerURL)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.check_vendor", false)

	v.SetDefault("workers", 4)
}

func decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func resolveConfigFile() (string, bool) {
	configMu.RLock()
	explicit := configFile
	configMu.RUnlock()
	if explicit != "" {
		return explicit, true
	}
	return DefaultConfigPath(), false
}

// applyVendorEnvFallbacks fills credentials from the vendor-conventional
// variables when the prefixed ones are unset.
func applyVendorEnvFallbacks(envOverrides map[string]any) {
	fallbacks := []struct {
		env  string
		path []string
	}{
		{"OPENAI_API_KEY", []string{"ailink", "api_key"}},
		{"NEXAR_CLIENT_ID", []string{"parts", "client_id"}},
		{"NEXAR_CLIENT_SECRET", []string{"parts", "client_secret"}},
	}
	for _, fb := range fallbacks {
		value := strings.TrimSpace(os.Getenv(fb.env))
		if value == "" {
			continue
		}
		section := ensureMap(envOverrides, fb.path[0])
		if existing, ok := section[fb.path[1]].(string); ok && strings.TrimSpace(existing) != "" {
			continue
		}
		section[fb.path[1]] = value
	}
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	if appIdentity == nil {
		return []EnvVarSpec{}
	}

	prefix := appIdentity.EnvPrefix
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		{Name: prefix + "CACHE_GENERATION_TTL", Path: []string{"cache", "generation_ttl"}, Type: EnvString},
		{Name: prefix + "CACHE_PARTS_TTL", Path: []string{"cache", "parts_ttl"}, Type: EnvString},

		// AILink config
		{Name: prefix + "AILINK_BASE_URL", Path: []string{"ailink", "base_url"}, Type: EnvString},
		{Name: prefix + "AILINK_API_KEY", Path: []string{"ailink", "api_key"}, Type: EnvString},
		{Name: prefix + "AILINK_DEFAULT_MODEL", Path: []string{"ailink", "default_model"}, Type: EnvString},
		{Name: prefix + "AILINK_IMAGE_MODEL", Path: []string{"ailink", "image_model"}, Type: EnvString},
		{Name: prefix + "AILINK_DEFAULT_TIMEOUT", Path: []string{"ailink", "default_timeout"}, Type: EnvString},
		{Name: prefix + "AILINK_MIN_INTERVAL", Path: []string{"ailink", "min_interval"}, Type: EnvString},
		{Name: prefix + "AILINK_MAX_ATTEMPTS", Path: []string{"ailink", "max_attempts"}, Type: EnvInt},
		{Name: prefix + "AILINK_PROMPTS_DIR", Path: []string{"ailink", "prompts_dir"}, Type: EnvString},
		{Name: prefix + "AILINK_DEBUG_CAPTURE_RAW_ENABLED", Path: []string{"ailink", "debug", "capture_raw_enabled"}, Type: EnvBool},
		{Name: prefix + "AILINK_DEBUG_CAPTURE_RAW_MAX_BYTES", Path: []string{"ailink", "debug", "capture_raw_max_bytes"}, Type: EnvInt},
		{Name: prefix + "AILINK_DEBUG_TRACE_FILE", Path: []string{"ailink", "debug", "trace_file"}, Type: EnvString},

		// Parts search
		{Name: prefix + "PARTS_TOKEN_URL", Path: []string{"parts", "token_url"}, Type: EnvString},
		{Name: prefix + "PARTS_GRAPHQL_URL", Path: []string{"parts", "graphql_url"}, Type: EnvString},
		{Name: prefix + "PARTS_CLIENT_ID", Path: []string{"parts", "client_id"}, Type: EnvString},
		{Name: prefix + "PARTS_CLIENT_SECRET", Path: []string{"parts", "client_secret"}, Type: EnvString},
		{Name: prefix + "PARTS_LIMIT", Path: []string{"parts", "limit"}, Type: EnvInt},
		{Name: prefix + "PARTS_TIMEOUT", Path: []string{"parts", "timeout"}, Type: EnvString},

		{Name: prefix + "APP_NAME", Path: []string{"app", "name"}, Type: EnvString},
		{Name: prefix + "APP_BANNER_URL", Path: []string{"app", "banner_url"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},
		{Name: prefix + "HEALTH_CHECK_VENDOR", Path: []string{"health", "check_vendor"}, Type: EnvBool},

		{Name: prefix + "WORKERS", Path: []string{"workers"}, Type: EnvInt},
	}
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "roboforge" if not set.
func appNamesForPaths() (configName string, binaryName string) {
	configName = "roboforge"
	binaryName = "roboforge"
	if appIdentity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(appIdentity.ConfigName) != "" {
		configName = appIdentity.ConfigName
	}
	if strings.TrimSpace(appIdentity.BinaryName) != "" {
		binaryName = appIdentity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultCacheDir returns the XDG-compliant cache directory for the app.
func DefaultCacheDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppCacheDir(configName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if parent == nil {
		return map[string]any{}
	}
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}
