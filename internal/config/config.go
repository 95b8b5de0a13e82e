// Package config loads sessionwatch settings from YAML, .env files and the
// environment. Precedence, lowest first: built-in defaults, the YAML file,
// environment variables. Command-line flags are applied by the binaries.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default poll cadence for the session monitor.
const (
	DefaultFastStatusInterval = 5 * time.Second
	DefaultSlowStatusInterval = 30 * time.Second
	DefaultScreenshotInterval = 10 * time.Second
	DefaultSettleDelay        = 2 * time.Second
	DefaultRequestTimeout     = 10 * time.Second
)

type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// BackendConfig is where the console finds the session backend.
type BackendConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type MonitorConfig struct {
	FastStatusInterval time.Duration `yaml:"fast_status_interval"`
	SlowStatusInterval time.Duration `yaml:"slow_status_interval"`
	ScreenshotInterval time.Duration `yaml:"screenshot_interval"`
	SettleDelay        time.Duration `yaml:"settle_delay"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	AutoReconnect      bool          `yaml:"auto_reconnect"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	Token             string        `yaml:"token"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
}

// SimulatorConfig drives the development backend's fake sessions.
type SimulatorConfig struct {
	Tick          time.Duration `yaml:"tick"`
	QRScanAfter   int           `yaml:"qr_scan_after"`
	ExpireAfter   int           `yaml:"expire_after"`
	LatencyJitter time.Duration `yaml:"latency_jitter"`
	FailureRate   float64       `yaml:"failure_rate"`
	Sessions      []SessionSeed `yaml:"sessions"`
}

// SessionSeed describes one simulated session at startup.
type SessionSeed struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
}

func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL: "http://127.0.0.1:8090",
		},
		Monitor: MonitorConfig{
			FastStatusInterval: DefaultFastStatusInterval,
			SlowStatusInterval: DefaultSlowStatusInterval,
			ScreenshotInterval: DefaultScreenshotInterval,
			SettleDelay:        DefaultSettleDelay,
			RequestTimeout:     DefaultRequestTimeout,
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              8090,
			BroadcastThrottle: 100 * time.Millisecond,
			SnapshotInterval:  5 * time.Second,
		},
		Simulator: SimulatorConfig{
			Tick:        time.Second,
			QRScanAfter: 12,
			ExpireAfter: 90,
			Sessions: []SessionSeed{
				{ID: "device-01", Name: "Support Phone A", Enabled: true},
				{ID: "device-02", Name: "Support Phone B", Enabled: true},
				{ID: "device-03", Name: "Staging Tablet", Enabled: false},
			},
		},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. The file must exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg = defaultConfig()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are not an error.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

func (c *Config) applyEnv() {
	c.Backend.URL = getEnv("SESSIONWATCH_URL", c.Backend.URL)
	c.Backend.Token = getEnv("SESSIONWATCH_TOKEN", c.Backend.Token)
	c.Log.Level = getEnv("SESSIONWATCH_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("SESSIONWATCH_LOG_FILE", c.Log.File)
	c.Monitor.AutoReconnect = getEnvAsBool("SESSIONWATCH_AUTO_RECONNECT", c.Monitor.AutoReconnect)
	c.Server.Host = getEnv("SESSIONWATCH_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("SESSIONWATCH_PORT", c.Server.Port)
	c.Server.Token = getEnv("SESSIONWATCH_SERVER_TOKEN", c.Server.Token)
}

// Validate rejects settings the monitor cannot run with.
func (c *Config) Validate() error {
	m := c.Monitor
	if m.FastStatusInterval <= 0 || m.SlowStatusInterval <= 0 || m.ScreenshotInterval <= 0 {
		return errors.New("monitor intervals must be positive")
	}
	if m.SettleDelay < 0 {
		return errors.New("monitor.settle_delay must not be negative")
	}
	if m.RequestTimeout <= 0 {
		return errors.New("monitor.request_timeout must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Simulator.FailureRate < 0 || c.Simulator.FailureRate > 1 {
		return fmt.Errorf("simulator.failure_rate %v must be within [0,1]", c.Simulator.FailureRate)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}
