package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points XDG lookups at temp dirs and clears credential variables so a
// developer's real config cannot leak into assertions.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	for _, key := range []string{
		"OPENAI_API_KEY", "NEXAR_CLIENT_ID", "NEXAR_CLIENT_SECRET",
		"ROBOFORGE_AILINK_API_KEY", "ROBOFORGE_PARTS_CLIENT_ID", "ROBOFORGE_PARTS_CLIENT_SECRET",
	} {
		t.Setenv(key, "")
	}
	SetConfigFile("")
	t.Cleanup(func() { SetConfigFile("") })
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("roboforge"), "roboforge.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)
		assert.Equal(t, "", cfg.Store.URL)

		assert.Equal(t, "gpt-4o", cfg.AILink.DefaultModel)
		assert.Equal(t, time.Second, cfg.AILink.MinInterval)
		assert.Equal(t, 3, cfg.AILink.MaxAttempts)
		assert.Empty(t, cfg.AILink.APIKey)

		assert.Equal(t, DefaultNexarTokenURL, cfg.Parts.TokenURL)
		assert.Equal(t, DefaultNexarGraphQLURL, cfg.Parts.GraphQLURL)
		assert.Equal(t, 10, cfg.Parts.Limit)

		assert.Equal(t, "ROBO Forge AI", cfg.App.Name)
		assert.Equal(t, "/banner.mp4", cfg.App.BannerURL)

		assert.Equal(t, time.Duration(0), cfg.Cache.GenerationTTL)
		assert.Equal(t, time.Hour, cfg.Cache.PartsTTL)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
		assert.Equal(t, 4, cfg.Workers)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("ROBOFORGE_PORT", "3000")
		t.Setenv("ROBOFORGE_LOG_LEVEL", "warn")
		t.Setenv("ROBOFORGE_METRICS_ENABLED", "false")
		t.Setenv("ROBOFORGE_AILINK_MIN_INTERVAL", "250ms")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, 250*time.Millisecond, cfg.AILink.MinInterval)
	})

	t.Run("VendorEnvFallbacks", func(t *testing.T) {
		isolate(t)
		t.Setenv("OPENAI_API_KEY", "sk-fallback")
		t.Setenv("NEXAR_CLIENT_ID", "nexar-id")
		t.Setenv("NEXAR_CLIENT_SECRET", "nexar-secret")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "sk-fallback", cfg.AILink.APIKey)
		assert.Equal(t, "nexar-id", cfg.Parts.ClientID)
		assert.Equal(t, "nexar-secret", cfg.Parts.ClientSecret)
	})

	t.Run("PrefixedKeyBeatsFallback", func(t *testing.T) {
		isolate(t)
		t.Setenv("OPENAI_API_KEY", "sk-fallback")
		t.Setenv("ROBOFORGE_AILINK_API_KEY", "sk-prefixed")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "sk-prefixed", cfg.AILink.APIKey)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolate(t)
		t.Setenv("ROBOFORGE_PORT", "4000")

		overrides := map[string]any{
			"server": map[string]any{
				"port": 5000,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		isolate(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7070\napp:\n  name: Workshop\n"), 0o600))
		SetConfigFile(path)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, "Workshop", cfg.App.Name)
		assert.Equal(t, "localhost", cfg.Server.Host)
	})

	t.Run("MissingExplicitConfigFile", func(t *testing.T) {
		isolate(t)
		SetConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))

		_, err := Load(ctx)
		require.Error(t, err)
	})
}

func TestGetConfig(t *testing.T) {
	isolate(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
}

func TestEnvSpecs(t *testing.T) {
	isolate(t)
	_, err := Load(context.Background())
	require.NoError(t, err)

	envVarNames := make(map[string]bool)
	for _, spec := range getEnvSpecs() {
		envVarNames[spec.Name] = true
	}

	for _, name := range []string{
		"ROBOFORGE_LOG_LEVEL", "ROBOFORGE_PORT", "ROBOFORGE_HOST",
		"ROBOFORGE_METRICS_PORT", "ROBOFORGE_DB_PATH", "ROBOFORGE_AILINK_API_KEY",
		"ROBOFORGE_PARTS_CLIENT_ID",
	} {
		assert.True(t, envVarNames[name], "%s must be mapped", name)
	}
}

func TestDurationParsing(t *testing.T) {
	isolate(t)
	t.Setenv("ROBOFORGE_READ_TIMEOUT", "45s")
	t.Setenv("ROBOFORGE_SHUTDOWN_TIMEOUT", "5m")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
}
