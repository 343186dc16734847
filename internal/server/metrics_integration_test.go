package server_test

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roboforge/roboforge/internal/config"
	"github.com/roboforge/roboforge/internal/observability"
	"github.com/roboforge/roboforge/internal/server"
	"github.com/roboforge/roboforge/internal/server/handlers"
)

func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { _ = observability.StopMetrics() })
}

// isPermissionError reports loopback bind failures from sandboxed runners.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	cleanupMetrics(t)
}

// newLoopbackServer serves the full router on an IPv4 loopback listener.
func newLoopbackServer(t *testing.T, api *handlers.API) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := server.New(config.ServerConfig{Host: "127.0.0.1"}, api)

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func TestMetricsEndpointCountsAPITraffic(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger(observability.ServerLogOptions{Service: "test", Level: "info"})
	initMetricsOrSkip(t)
	handlers.InitHealthManager("test")

	// No build store: /api/builds answers with a configuration error.
	ts, client := newLoopbackServer(t, &handlers.API{AppName: "ROBO Forge AI"})

	const numRequests = 40
	const numWorkers = 8

	paths := []string{"/api/app", "/api/builds", "/version", "/health/live"}
	requests := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requests <- i
	}
	close(requests)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for n := range requests {
				resp, err := client.Get(ts.URL + paths[n%len(paths)])
				if err == nil {
					_ = resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	resp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	content := string(body)
	assert.Contains(t, content, "test_http_requests_total")
	assert.Contains(t, content, "test_http_request_duration_ms")
	assert.Less(t, elapsed, 5*time.Second)
}

func TestMetricsEndpointPrometheusFormat(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger(observability.ServerLogOptions{Service: "test", Level: "info"})
	initMetricsOrSkip(t)
	handlers.InitHealthManager("test")

	ts, client := newLoopbackServer(t, &handlers.API{AppName: "ROBO Forge AI"})

	resp, err := client.Get(ts.URL + "/api/app")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	contentType := resp.Header.Get("Content-Type")
	assert.True(t, strings.HasPrefix(contentType, "text/plain; version=0.0.4"),
		"expected Prometheus content type, got %s", contentType)

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)

	samples := 0
	labelled := false
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		samples++
		if strings.Contains(line, "{") && len(strings.Fields(line)) >= 2 {
			labelled = true
		}
	}
	assert.True(t, labelled, "expected labelled metric samples")
	assert.Greater(t, samples, 0)
}

func TestMetricsEndpointWithoutExporter(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger(observability.ServerLogOptions{Service: "test", Level: "info"})

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})
	t.Setenv("ROBOFORGE_METRICS_ENABLED", "false")

	handlers.InitHealthManager("test")
	ts, client := newLoopbackServer(t, &handlers.API{AppName: "ROBO Forge AI"})

	resp, err := client.Get(ts.URL + "/api/app")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
