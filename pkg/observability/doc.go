// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, and health checks for the Loom services.
//
// The Logger wraps log/slog with a JSON handler and context helpers so that
// request-scoped fields (request ID, user ID) flow through every log line.
// Metrics cover the HTTP surface, the session lifecycle, and avatar uploads.
// The HealthChecker backs the liveness and readiness probes served on the
// dedicated health port.
package observability
