package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the auth core and its HTTP surface
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Session lifecycle metrics
	SessionsIssuedTotal   prometheus.Counter
	SessionsRevokedTotal  *prometheus.CounterVec
	TokenValidationsTotal *prometheus.CounterVec

	// Avatar upload metrics
	AvatarUploadsTotal   *prometheus.CounterVec
	AvatarUploadBytes    prometheus.Histogram
	AvatarUploadDuration prometheus.Histogram

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics. A nil
// registry gets a private one, which tests rely on.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loom_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SessionsIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "loom_sessions_issued_total",
				Help: "Total number of sessions issued at login",
			},
		),
		SessionsRevokedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_sessions_revoked_total",
				Help: "Total number of sessions revoked, by trigger",
			},
			[]string{"trigger"}, // logout, tier_change, sweep
		),
		TokenValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_token_validations_total",
				Help: "Total number of token validations, by outcome",
			},
			[]string{"outcome"}, // valid, invalid, error
		),
		AvatarUploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_avatar_uploads_total",
				Help: "Total number of avatar uploads, by outcome",
			},
			[]string{"outcome"}, // success, rejected, failed
		),
		AvatarUploadBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "loom_avatar_upload_bytes",
				Help:    "Size of accepted avatar uploads in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		AvatarUploadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "loom_avatar_upload_duration_seconds",
				Help:    "End-to-end avatar upload duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "loom_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "loom_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionsIssuedTotal,
		m.SessionsRevokedTotal,
		m.TokenValidationsTotal,
		m.AvatarUploadsTotal,
		m.AvatarUploadBytes,
		m.AvatarUploadDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware instruments an HTTP handler with request count and duration
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
