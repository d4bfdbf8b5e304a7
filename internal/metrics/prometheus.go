package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "usermgmt"

// PrometheusRecorder exports metrics through a dedicated Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	logins         *prometheus.CounterVec
	keyValidations *prometheus.CounterVec
	logouts        *prometheus.CounterVec
	keysSwept      prometheus.Counter
	sweepDuration  prometheus.Histogram
	userOperations *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
	auditEvents    *prometheus.CounterVec
}

// NewPrometheus creates a recorder with its own registry.
// Go runtime and process collectors are registered alongside the application metrics.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,

		logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Total number of login attempts",
			},
			[]string{"result"},
		),

		keyValidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_key_validations_total",
				Help:      "Total number of API key checks at the authentication gate",
			},
			[]string{"result"},
		),

		logouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logouts_total",
				Help:      "Total number of logout requests",
			},
			[]string{"found"},
		),

		keysSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_keys_swept_total",
				Help:      "Total number of expired API keys removed",
			},
		),

		sweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_key_sweep_duration_seconds",
				Help:      "Duration of expired API key sweeps",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),

		userOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "user_operations_total",
				Help:      "Total number of user mutations",
			},
			[]string{"operation"},
		),

		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_requests_total",
				Help:      "Total number of requests rejected by rate limiting",
			},
			[]string{"scope"},
		),

		auditEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_events_total",
				Help:      "Total number of audit events sent to the Redis stream",
			},
			[]string{"result"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// IncLogin counts a login attempt by result.
func (p *PrometheusRecorder) IncLogin(result string) {
	p.logins.WithLabelValues(result).Inc()
}

// IncKeyValidation counts a gate decision by result.
func (p *PrometheusRecorder) IncKeyValidation(result string) {
	p.keyValidations.WithLabelValues(result).Inc()
}

// IncLogout counts a logout by whether the key existed.
func (p *PrometheusRecorder) IncLogout(found bool) {
	p.logouts.WithLabelValues(strconv.FormatBool(found)).Inc()
}

// ObserveSweep records one expiry sweep.
func (p *PrometheusRecorder) ObserveSweep(removed int64, duration time.Duration) {
	p.keysSwept.Add(float64(removed))
	p.sweepDuration.Observe(duration.Seconds())
}

// IncUserOperation counts a user mutation.
func (p *PrometheusRecorder) IncUserOperation(op string) {
	p.userOperations.WithLabelValues(op).Inc()
}

// IncRateLimited counts a rejected request by limiter scope.
func (p *PrometheusRecorder) IncRateLimited(scope string) {
	p.rateLimited.WithLabelValues(scope).Inc()
}

// IncAuditEvent counts an audit stream publish by result.
func (p *PrometheusRecorder) IncAuditEvent(result string) {
	p.auditEvents.WithLabelValues(result).Inc()
}
