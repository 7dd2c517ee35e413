package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// DependencyPinger checks a named external dependency, e.g. object storage.
type DependencyPinger interface {
	HealthCheck(ctx context.Context) error
}

// HealthChecker backs the liveness and readiness probes
type HealthChecker struct {
	db      *sql.DB
	redis   *redis.Client
	extra   map[string]DependencyPinger
	version string
}

// NewHealthChecker creates a health checker over the core dependencies.
// db and redis may be nil when the deployment does not use them.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, version string) *HealthChecker {
	return &HealthChecker{
		db:      db,
		redis:   redisClient,
		extra:   make(map[string]DependencyPinger),
		version: version,
	}
}

// AddDependency registers an additional named dependency for readiness checks
func (h *HealthChecker) AddDependency(name string, pinger DependencyPinger) {
	h.extra[name] = pinger
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Liveness is a simple liveness probe: 200 whenever the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   h.version,
	})
}

// Readiness checks every registered dependency and reports 503 if any fails
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deps := make(map[string]DependencyStatus)
	overall := StatusHealthy

	if h.db != nil {
		deps["postgres"] = h.check(func() error { return h.db.PingContext(ctx) })
	}
	if h.redis != nil {
		deps["redis"] = h.check(func() error { return h.redis.Ping(ctx).Err() })
	}
	for name, pinger := range h.extra {
		p := pinger
		deps[name] = h.check(func() error { return p.HealthCheck(ctx) })
	}

	for _, dep := range deps {
		if dep.Status != StatusHealthy {
			overall = StatusUnhealthy
			break
		}
	}

	status := http.StatusOK
	if overall != StatusHealthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(HealthStatus{
		Status:       overall,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: deps,
	})
}

func (h *HealthChecker) check(ping func() error) DependencyStatus {
	start := time.Now()
	err := ping()
	latency := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		return DependencyStatus{
			Status:    StatusUnhealthy,
			Message:   err.Error(),
			LatencyMS: latency,
		}
	}
	return DependencyStatus{
		Status:    StatusHealthy,
		LatencyMS: latency,
	}
}
