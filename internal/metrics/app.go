package metrics

import (
	"time"

	"github.com/roboforge/roboforge/internal/observability"
)

// Application metric names.
const (
	GenerationsTotal    = "forge_generations_total"
	GenerationDuration  = "forge_generation_duration_ms"
	CacheLookupsTotal   = "forge_cache_lookups_total"
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"
)

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordGeneration records one artifact generation against the vendor.
func RecordGeneration(artifact string, success bool, duration time.Duration) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	labels := map[string]string{"artifact": artifact, "status": outcome(success)}
	_ = sys.Counter(GenerationsTotal, 1, labels)
	_ = sys.Histogram(GenerationDuration, duration, labels)
}

// RecordCacheLookup records a generation or parts cache probe.
func RecordCacheLookup(cache string, hit bool) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	_ = sys.Counter(CacheLookupsTotal, 1, map[string]string{"cache": cache, "result": result})
}

// RecordHealthCheck records one health checker run.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = sys.Counter(HealthCheckTotal, 1, map[string]string{"check": checkName, "status": status})
	_ = sys.Histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
}

// SetServerStartTime records the server start as a Unix timestamp.
func SetServerStartTime(t time.Time) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(ServerStartTime, float64(t.Unix()), nil)
	}
}
