package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/loomworks/loom/pkg/httputil"
	"github.com/loomworks/loom/pkg/observability"
)

// ThrottleConfig bounds how often one client may hit an endpoint
type ThrottleConfig struct {
	// Attempts is the max requests allowed in the window
	Attempts int
	// Window is the fixed counting window
	Window time.Duration
}

// LoginThrottleConfig returns throttle settings for credential endpoints.
// Tight enough to slow brute force, loose enough for a user mistyping
// a password a few times.
func LoginThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		Attempts: 10,
		Window:   time.Minute,
	}
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter is a fixed-window limiter for single-instance deployments.
type MemoryLimiter struct {
	config ThrottleConfig

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter creates an in-process limiter
func NewMemoryLimiter(config ThrottleConfig) *MemoryLimiter {
	return &MemoryLimiter{
		config:  config,
		windows: make(map[string]*window),
	}
}

// Allow counts one attempt against the key's current window
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(l.config.Window)}
		l.windows[key] = w
	}

	w.count++
	return w.count <= l.config.Attempts, nil
}

// RedisLimiter is a fixed-window limiter shared across instances.
type RedisLimiter struct {
	client *redis.Client
	config ThrottleConfig
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(client *redis.Client, config ThrottleConfig, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "throttle"
	}
	return &RedisLimiter{client: client, config: config, prefix: prefix}
}

// Allow counts one attempt against the key's current window. Redis
// failures allow the request; throttling is not worth an outage.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("throttle counter: %w", err)
	}

	return incr.Val() <= int64(l.config.Attempts), nil
}

// Throttle wraps a handler so each client IP gets a bounded number of
// attempts per window. Over-limit requests get 429 with Retry-After.
func Throttle(limiter Limiter, config ThrottleConfig, logger *observability.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WithError(err).Warn("throttle check failed, allowing request")
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(config.Window.Seconds())))
				httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "too many attempts, slow down")
				return
			}

			next(w, r)
		}
	}
}

// clientIP extracts the originating client address, preferring the
// first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
