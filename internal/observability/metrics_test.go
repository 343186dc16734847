package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePort(t *testing.T) {
	port, err := resolvePort("[::]:9464")
	require.NoError(t, err)
	assert.Equal(t, 9464, port)

	_, err = resolvePort("no-port")
	assert.Error(t, err)
}

func TestStopMetricsWithoutExporter(t *testing.T) {
	origSys, origExp := TelemetrySystem, PrometheusExporter
	t.Cleanup(func() { TelemetrySystem, PrometheusExporter = origSys, origExp })

	TelemetrySystem, PrometheusExporter = nil, nil
	assert.NoError(t, StopMetrics())
	assert.Nil(t, TelemetrySystem)
}
