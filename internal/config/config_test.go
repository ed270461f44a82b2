package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Empty values exercise the same path as unset ones for these keys.
	t.Setenv("FRONTEND_URL", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CONVERSATION_BACKEND_TOKEN", "")
	t.Setenv("GRPC_HEALTH_ADDR", "")
	t.Setenv("PORT", "8080")
	t.Setenv("CONVERSATION_BACKEND_URL", "http://localhost:5000")
	t.Setenv("GATEWAY_TIMEOUT", "15s")
	t.Setenv("SYNC_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_RPS", "5")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("HEALTH_PROBE_INTERVAL", "15s")
	t.Setenv("WS_PING_INTERVAL", "20s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "http://localhost:5000", cfg.Backend.URL)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Sync.Interval)
	assert.InDelta(t, 5, cfg.RateLimit.RPS, 0)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Empty(t, cfg.Health.GRPCAddr)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FRONTEND_URL", "https://panel.example.com")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CONVERSATION_BACKEND_URL", "https://debate.example.com")
	t.Setenv("CONVERSATION_BACKEND_TOKEN", "secret")
	t.Setenv("GATEWAY_TIMEOUT", "5s")
	t.Setenv("SYNC_INTERVAL", "3")
	t.Setenv("RATE_LIMIT_RPS", "0.5")
	t.Setenv("RATE_LIMIT_BURST", "2")
	t.Setenv("GRPC_HEALTH_ADDR", ":9091")
	t.Setenv("HEALTH_PROBE_INTERVAL", "1m")
	t.Setenv("WS_PING_INTERVAL", "20s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "secret", cfg.Backend.Token)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Sync.Interval)
	assert.InDelta(t, 0.5, cfg.RateLimit.RPS, 0)
	assert.Equal(t, 2, cfg.RateLimit.Burst)
	assert.Equal(t, ":9091", cfg.Health.GRPCAddr)
	assert.Equal(t, time.Minute, cfg.Health.ProbeInterval)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"https://panel.example.com"}, cfg.AllowedOrigins())
}

func TestGetEnvDurationFallback(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, time.Second, getEnvDuration("SOME_DURATION", time.Second))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:           "8080",
			Backend:        BackendConfig{URL: "http://localhost:5000", Timeout: time.Second},
			Sync:           SyncConfig{Interval: time.Second},
			RateLimit:      RateLimitConfig{RPS: 1, Burst: 1},
			Health:         HealthConfig{ProbeInterval: time.Second},
			WSPingInterval: time.Second,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"empty backend", func(c *Config) { c.Backend.URL = "" }, "CONVERSATION_BACKEND_URL"},
		{"bad scheme", func(c *Config) { c.Backend.URL = "ftp://host" }, "CONVERSATION_BACKEND_URL"},
		{"zero timeout", func(c *Config) { c.Backend.Timeout = 0 }, "GATEWAY_TIMEOUT"},
		{"zero interval", func(c *Config) { c.Sync.Interval = 0 }, "SYNC_INTERVAL"},
		{"zero rps", func(c *Config) { c.RateLimit.RPS = 0 }, "RATE_LIMIT_RPS"},
		{"zero burst", func(c *Config) { c.RateLimit.Burst = 0 }, "RATE_LIMIT_BURST"},
		{"zero probe", func(c *Config) { c.Health.ProbeInterval = 0 }, "HEALTH_PROBE_INTERVAL"},
		{"zero ping", func(c *Config) { c.WSPingInterval = 0 }, "WS_PING_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
