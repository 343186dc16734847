package config

import (
	"time"

	"github.com/roboforge/roboforge/internal/ailink"
)

// Config represents the complete application configuration.
//
// Values resolve in order: built-in defaults, the optional YAML file
// (~/.config/roboforge/config.yaml or --config), ROBOFORGE_* environment
// variables, then runtime overrides.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Cache   CacheConfig   `mapstructure:"cache"`
	AILink  ailink.Config `mapstructure:"ailink"`
	Parts   PartsConfig   `mapstructure:"parts"`
	App     AppConfig     `mapstructure:"app"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Workers int           `mapstructure:"workers"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// CacheConfig contains cache TTLs. Zero disables the cache.
type CacheConfig struct {
	GenerationTTL time.Duration `mapstructure:"generation_ttl"`
	PartsTTL      time.Duration `mapstructure:"parts_ttl"`
}

// PartsConfig configures the Nexar parts-search proxy.
type PartsConfig struct {
	TokenURL     string        `mapstructure:"token_url"`
	GraphQLURL   string        `mapstructure:"graphql_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Limit        int           `mapstructure:"limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// AppConfig carries the values served by GET /api/app.
type AppConfig struct {
	Name      string `mapstructure:"name"`
	BannerURL string `mapstructure:"banner_url"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles per Fulmen Forge Workhorse Standard:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`

	// CheckVendor adds a vendor probe to the aggregate /health report.
	CheckVendor bool `mapstructure:"check_vendor"`
}
