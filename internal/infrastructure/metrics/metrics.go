package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/lorrc/accounts/internal/core/errors"
)

const namespace = "accounts"

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	Operations         *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	VerificationWatch  *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
	HTTPRequests       *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Account operations by outcome.",
		}, []string{"operation", "outcome"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of account operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		VerificationWatch: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_watches_total",
			Help:      "Finished email verification watches by result.",
		}, []string{"result"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "API sessions currently held in memory.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Outcome classifies err into a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, apperrors.ErrEmailAlreadyInUse):
		return "email_in_use"
	case errors.Is(err, apperrors.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, apperrors.ErrSavingData):
		return "saving_data"
	case errors.Is(err, apperrors.ErrVerificationTimeout):
		return "timeout"
	}
	if code, ok := apperrors.CodeOf(err); ok {
		return "backend_" + string(code)
	}
	return "error"
}
