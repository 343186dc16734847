package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitCLILogger(t *testing.T) {
	original := CLILogger
	t.Cleanup(func() { CLILogger = original })

	InitCLILogger("roboforge-test", true)
	require.NotNil(t, CLILogger)
	CLILogger.Debug("verbose forge output", zap.String("artifact", "code"))
}

func TestInitServerLoggerStructured(t *testing.T) {
	original := ServerLogger
	t.Cleanup(func() { ServerLogger = original })

	InitServerLogger(ServerLogOptions{
		Service:   "roboforge-test",
		Level:     "debug",
		Namespace: "roboforge",
		Fields:    map[string]any{"component": "api"},
	})
	require.NotNil(t, ServerLogger)
	ServerLogger.Info("generation completed",
		zap.String("artifact", "circuit"),
		zap.Int("attempts", 1))
}

func TestServerLoggerConfigProfiles(t *testing.T) {
	structured := serverLoggerConfig(ServerLogOptions{Service: "svc", Namespace: "ns"})
	assert.Equal(t, logging.ProfileStructured, structured.Profile)
	assert.Equal(t, "production", structured.Environment)
	assert.Equal(t, "ns", structured.StaticFields["namespace"])
	require.Len(t, structured.Sinks, 1)
	assert.Equal(t, "json", structured.Sinks[0].Format)

	simple := serverLoggerConfig(ServerLogOptions{Service: "svc", Profile: "Simple", Environment: "dev"})
	assert.Equal(t, logging.ProfileSimple, simple.Profile)
	assert.Equal(t, "dev", simple.Environment)
	assert.Equal(t, "console", simple.Sinks[0].Format)

	logger, err := logging.New(simple)
	require.NoError(t, err)
	logger.Info("simple profile ready")
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		"DEBUG":   "DEBUG",
		" warn ":  "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"info":    "INFO",
		"bogus":   "INFO",
		"":        "INFO",
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLogLevel(in), "level %q", in)
	}
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "(not set)", Redact("  "))
	assert.Equal(t, "****", Redact("sk-short"))
	assert.Equal(t, "****wxyz", Redact("sk-proj-abcdefghijklmnopqrstuvwxyz"))
}

func TestCrucibleVersionAvailable(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, version.Crucible)
	assert.NotEmpty(t, crucible.GetVersionString())
}
