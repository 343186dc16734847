package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/roboforge/roboforge/internal/observability"
)

// Route surfaces group endpoints for dashboards and log levels.
const (
	SurfaceGeneration = "generation"
	SurfaceParts      = "parts"
	SurfaceBuilds     = "builds"
	SurfaceOps        = "ops"
	SurfaceOther      = "other"
)

// statusRecorder captures the status code and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// routeLabel returns a low-cardinality endpoint label. The chi pattern wins
// when routing matched; otherwise known path shapes are collapsed.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "":
		return "/"
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case path == "/version", path == "/metrics",
		path == "/api/app", path == "/api/forge", path == "/api/codegen", path == "/api/parts",
		path == "/api/builds":
		return path
	case strings.HasPrefix(path, "/api/generate/"):
		return "/api/generate/{kind}"
	case strings.HasPrefix(path, "/api/builds/"):
		rest := strings.TrimPrefix(path, "/api/builds/")
		switch parts := strings.Split(rest, "/"); {
		case len(parts) == 1:
			return "/api/builds/{id}"
		case len(parts) == 2 && parts[1] == "parts":
			return "/api/builds/{id}/parts"
		case len(parts) == 3 && parts[1] == "parts":
			return "/api/builds/{id}/parts/{index}"
		}
	}
	return "/unknown"
}

// routeSurface maps an endpoint label to its surface.
func routeSurface(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "/api/generate"), endpoint == "/api/forge", endpoint == "/api/codegen":
		return SurfaceGeneration
	case endpoint == "/api/parts":
		return SurfaceParts
	case strings.HasPrefix(endpoint, "/api/builds"):
		return SurfaceBuilds
	case strings.HasPrefix(endpoint, "/health"), endpoint == "/version", endpoint == "/metrics", endpoint == "/api/app":
		return SurfaceOps
	}
	return SurfaceOther
}

// RequestMetrics records request count, latency and error metrics, then logs
// the request. Probe traffic is logged at debug level.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		endpoint := routeLabel(r)
		surface := routeSurface(endpoint)
		status := strconv.Itoa(rec.status)

		if sys := observability.TelemetrySystem; sys != nil {
			labels := map[string]string{
				"method":   r.Method,
				"endpoint": endpoint,
				"status":   status,
				"surface":  surface,
			}
			_ = sys.Counter("http_requests_total", 1, labels)
			_ = sys.Histogram("http_request_duration_ms", duration, labels)
			_ = sys.Gauge("http_response_size_bytes", float64(rec.bytes), map[string]string{
				"endpoint": endpoint,
				"surface":  surface,
			})
			if rec.status >= http.StatusBadRequest {
				class := "client_error"
				if rec.status >= http.StatusInternalServerError {
					class = "server_error"
				}
				_ = sys.Counter("http_errors_total", 1, map[string]string{
					"endpoint":   endpoint,
					"surface":    surface,
					"status":     status,
					"error_type": class,
				})
			}
		}

		logger := observability.ServerLogger
		if logger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", endpoint),
			zap.String("surface", surface),
			zap.Int("status", rec.status),
			zap.Duration("duration", duration),
			zap.Int64("response_size", rec.bytes),
			zap.String("requestID", GetRequestID(r.Context())),
		}
		switch {
		case rec.status >= http.StatusInternalServerError:
			logger.Warn("HTTP request failed", fields...)
		case surface == SurfaceOps:
			logger.Debug("HTTP request completed", fields...)
		default:
			logger.Info("HTTP request completed", fields...)
		}
	})
}
