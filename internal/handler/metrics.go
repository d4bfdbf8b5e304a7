package handler

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/usermgmt/usermgmt/internal/metrics"
)

// MetricsHandler exposes metrics in Prometheus text format.
// A registry-backed exporter is served as is; an in-memory recorder is
// rendered from its snapshot.
type MetricsHandler struct {
	exporter    http.Handler
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a MetricsHandler for the given recorder.
func NewMetricsHandler(recorder metrics.Recorder) *MetricsHandler {
	h := &MetricsHandler{}
	switch r := recorder.(type) {
	case interface{ Handler() http.Handler }:
		h.exporter = r.Handler()
	case metrics.Snapshotter:
		h.snapshotter = r
	}
	return h
}

// Metrics handles GET /metrics.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.exporter != nil {
		h.exporter.ServeHTTP(w, r)
		return
	}
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabeled(w, "usermgmt_logins_total", "result", snap.Logins)
	writeLabeled(w, "usermgmt_api_key_validations_total", "result", snap.KeyValidations)
	writeMetric(w, "usermgmt_logouts_total{found=\"true\"} %d\n", snap.LogoutsFound)
	writeMetric(w, "usermgmt_logouts_total{found=\"false\"} %d\n", snap.LogoutsNotFound)
	writeMetric(w, "usermgmt_api_keys_swept_total %d\n", snap.KeysSwept)
	writeMetric(w, "usermgmt_api_key_sweep_duration_seconds_count %d\n", snap.Sweeps)
	writeMetric(w, "usermgmt_api_key_sweep_duration_seconds_sum %.6f\n", float64(snap.SweepDurationNs)/1e9)
	writeLabeled(w, "usermgmt_user_operations_total", "operation", snap.UserOperations)
	writeLabeled(w, "usermgmt_rate_limited_requests_total", "scope", snap.RateLimited)
	writeLabeled(w, "usermgmt_audit_events_total", "result", snap.AuditEvents)
}

func writeLabeled(w http.ResponseWriter, name, label string, values map[string]uint64) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
