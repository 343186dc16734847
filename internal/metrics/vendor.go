package metrics

import (
	"time"

	"github.com/roboforge/roboforge/internal/observability"
)

// Vendor client metrics.
const (
	VendorDispatchTotal = "vendor_dispatch_total"
	VendorRetryTotal    = "vendor_retry_total"
	VendorErrorsTotal   = "vendor_errors_total"
	VendorPacingWait    = "vendor_pacing_wait_ms"
	VendorDispatchMs    = "vendor_dispatch_duration_ms"
)

// RecordVendorDispatch records one dispatch attempt against a vendor endpoint.
func RecordVendorDispatch(endpoint string, status string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{"endpoint": endpoint, "status": status}
	_ = observability.TelemetrySystem.Counter(VendorDispatchTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(VendorDispatchMs, duration, map[string]string{"endpoint": endpoint})
}

// RecordVendorRetry records a retry scheduled after a failure of the given kind.
func RecordVendorRetry(kind string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(VendorRetryTotal, 1, map[string]string{"kind": kind})
	}
}

// RecordVendorError records a failure surfaced to the caller.
func RecordVendorError(endpoint string, kind string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(VendorErrorsTotal, 1, map[string]string{
			"endpoint": endpoint,
			"kind":     kind,
		})
	}
}

// RecordPacingWait records how long a dispatch waited for its slot.
func RecordPacingWait(wait time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(VendorPacingWait, wait, nil)
	}
}
