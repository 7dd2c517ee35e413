// Package config loads application configuration from LOOM_* environment
// variables with typed getters and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/loomworks/loom/pkg/observability"
	"github.com/loomworks/loom/pkg/storage"
)

// SessionBackend selects the session store implementation
const (
	SessionBackendPostgres = "postgres"
	SessionBackendRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Auth          AuthConfig
	Storage       storage.Config
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// CORSOrigins lists allowed origins; empty disables CORS headers
	CORSOrigins []string
}

// AuthConfig holds token and upload policy configuration
type AuthConfig struct {
	// SessionBackend is "postgres" or "redis"
	SessionBackend string

	// TokenTTL is the session lifetime
	TokenTTL time.Duration

	// AvatarMaxSize caps avatar uploads in bytes
	AvatarMaxSize int64

	// AvatarTimeout bounds one avatar upload end to end
	AvatarTimeout time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Auth:          loadAuthConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	cfg := ServerConfig{
		Host:            getEnv("LOOM_HOST", "0.0.0.0"),
		Port:            getEnv("LOOM_PORT", "8080"),
		ReadTimeout:     getEnvDuration("LOOM_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("LOOM_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("LOOM_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("LOOM_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("LOOM_HEALTH_PORT", "9090"),
	}
	if origins := getEnv("LOOM_CORS_ORIGINS", ""); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}
	return cfg
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		SessionBackend: getEnv("LOOM_SESSION_BACKEND", SessionBackendPostgres),
		TokenTTL:       getEnvDuration("LOOM_TOKEN_TTL", 24*time.Hour),
		AvatarMaxSize:  getEnvInt64("LOOM_AVATAR_MAX_SIZE", 5<<20),
		AvatarTimeout:  getEnvDuration("LOOM_AVATAR_TIMEOUT", 30*time.Second),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("LOOM_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("LOOM_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("LOOM_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("LOOM_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if redisURL := getEnv("LOOM_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("LOOM_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("LOOM_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("LOOM_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("LOOM_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	if s3Endpoint := getEnv("LOOM_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("LOOM_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("LOOM_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("LOOM_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("LOOM_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("LOOM_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	if cacheEnabled := getEnv("LOOM_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}

	return cfg
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("LOOM_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("LOOM_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("LOOM_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("LOOM_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("LOOM_OTEL_SERVICE_NAME", "loom"),
		OTelServiceVersion: getEnv("LOOM_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("LOOM_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Auth.SessionBackend {
	case SessionBackendPostgres:
	case SessionBackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis session backend")
		}
	default:
		return fmt.Errorf("invalid session backend: %s (must be postgres or redis)", c.Auth.SessionBackend)
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
