package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/observability"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("LOOM_POSTGRES_URL", "postgres://localhost/loom")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, SessionBackendPostgres, cfg.Auth.SessionBackend)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, int64(5<<20), cfg.Auth.AvatarMaxSize)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Storage.CacheEnabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("LOOM_POSTGRES_URL", "postgres://db:5432/loom")
	t.Setenv("LOOM_PORT", "3000")
	t.Setenv("LOOM_TOKEN_TTL", "1h")
	t.Setenv("LOOM_LOG_LEVEL", "debug")
	t.Setenv("LOOM_SESSION_BACKEND", "redis")
	t.Setenv("LOOM_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("LOOM_CORS_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("LOOM_S3_BUCKET", "custom-avatars")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, SessionBackendRedis, cfg.Auth.SessionBackend)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "custom-avatars", cfg.Storage.S3Bucket)
}

func TestLoadConfig_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing postgres url", map[string]string{}},
		{"same ports", map[string]string{
			"LOOM_POSTGRES_URL": "postgres://localhost/loom",
			"LOOM_PORT":         "8080",
			"LOOM_HEALTH_PORT":  "8080",
		}},
		{"redis backend without redis url", map[string]string{
			"LOOM_POSTGRES_URL":    "postgres://localhost/loom",
			"LOOM_SESSION_BACKEND": "redis",
		}},
		{"unknown session backend", map[string]string{
			"LOOM_POSTGRES_URL":    "postgres://localhost/loom",
			"LOOM_SESSION_BACKEND": "memcached",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, observability.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, observability.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("garbage"))
}
