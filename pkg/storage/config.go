package storage

import "time"

// Config for the backing services
type Config struct {
	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Cache config
	CacheEnabled bool
	CacheTTL     map[string]time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		S3Region:         "us-east-1",
		S3Bucket:         "loom-avatars",
		CacheEnabled:     true,
		CacheTTL: map[string]time.Duration{
			"dashboard": 30 * time.Second,
			"user":      time.Minute,
		},
	}
}
