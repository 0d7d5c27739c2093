package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("CACHE_TYPE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 10*time.Minute, cfg.Cache.LocationTTL)
	assert.Equal(t, 64, cfg.Push.SendBuffer)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CACHE_TYPE", "redis")
	t.Setenv("CACHE_LOCATION_TTL", "90s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("REDIS_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, 90*time.Second, cfg.Cache.LocationTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Auth.JWTSecret = "short"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Cache.Type = "memcached"
	assert.Error(t, cfg.Validate())
}
