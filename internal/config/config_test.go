package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
backend:
  url: "http://backend:9000"
  token: "secret"
monitor:
  fast_status_interval: 1s
  slow_status_interval: 15s
  auto_reconnect: true
server:
  port: 9191
simulator:
  sessions:
    - id: only
      name: Only Device
      enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000", cfg.Backend.URL)
	assert.Equal(t, "secret", cfg.Backend.Token)
	assert.Equal(t, time.Second, cfg.Monitor.FastStatusInterval)
	assert.Equal(t, 15*time.Second, cfg.Monitor.SlowStatusInterval)
	assert.True(t, cfg.Monitor.AutoReconnect)
	assert.Equal(t, 9191, cfg.Server.Port)
	require.Len(t, cfg.Simulator.Sessions, 1)
	assert.Equal(t, "only", cfg.Simulator.Sessions[0].ID)

	// Unspecified fields keep their defaults.
	assert.Equal(t, DefaultScreenshotInterval, cfg.Monitor.ScreenshotInterval)
	assert.Equal(t, DefaultSettleDelay, cfg.Monitor.SettleDelay)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, DefaultFastStatusInterval, cfg.Monitor.FastStatusInterval)
	assert.Equal(t, DefaultSlowStatusInterval, cfg.Monitor.SlowStatusInterval)
	assert.Equal(t, DefaultScreenshotInterval, cfg.Monitor.ScreenshotInterval)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Simulator.Sessions)
}

func TestLoadOrDefaultInvalidYAML(t *testing.T) {
	path := writeConfig(t, ":::not valid yaml")
	_, err := LoadOrDefault(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SESSIONWATCH_URL", "http://env:1234")
	t.Setenv("SESSIONWATCH_TOKEN", "env-token")
	t.Setenv("SESSIONWATCH_PORT", "7000")
	t.Setenv("SESSIONWATCH_AUTO_RECONNECT", "true")

	path := writeConfig(t, `
backend:
  url: "http://file:1"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://env:1234", cfg.Backend.URL)
	assert.Equal(t, "env-token", cfg.Backend.Token)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.True(t, cfg.Monitor.AutoReconnect)
}

func TestEnvOverrideBadValuesIgnored(t *testing.T) {
	t.Setenv("SESSIONWATCH_PORT", "not-a-number")
	t.Setenv("SESSIONWATCH_AUTO_RECONNECT", "maybe")

	cfg, err := LoadOrDefault("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.False(t, cfg.Monitor.AutoReconnect)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero fast interval", func(c *Config) { c.Monitor.FastStatusInterval = 0 }},
		{"negative screenshot interval", func(c *Config) { c.Monitor.ScreenshotInterval = -time.Second }},
		{"negative settle delay", func(c *Config) { c.Monitor.SettleDelay = -1 }},
		{"zero request timeout", func(c *Config) { c.Monitor.RequestTimeout = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"failure rate above one", func(c *Config) { c.Simulator.FailureRate = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, defaultConfig().Validate())
}

func TestExampleFileMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "sessionwatch.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}
