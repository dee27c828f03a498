// Package config loads taskd's yaml configuration with environment
// overrides and sane defaults. The active config is fingerprinted so the
// health surface can expose which config a running daemon was started with.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CORSConfig controls cross-origin request handling for the HTTP API.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// RateLimitConfig controls per-client request throttling.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	BurstSize         int  `yaml:"burst_size"`
}

// StatsConfig controls the aggregation engine.
type StatsConfig struct {
	// CacheTTLSeconds bounds how long a computed summary stays fresh.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// AuditConfig controls the mutation journal.
type AuditConfig struct {
	// DSN is the sqlite DSN for the journal table. Empty means ":memory:",
	// keeping the journal as volatile as the task store itself.
	DSN string `yaml:"dsn"`
	// RetentionDays bounds how long journal entries are kept before the
	// maintenance scheduler prunes them. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// OtelConfig controls OpenTelemetry export.
type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // "stdout" or "otlp-http"
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// ScheduleConfig defines one maintenance job: a 5-field cron expression and
// a built-in action ("refresh_stats" or "prune_audit").
type ScheduleConfig struct {
	Name     string `yaml:"name"`
	CronExpr string `yaml:"cron_expr"`
	Action   string `yaml:"action"`
}

// Config is the full daemon configuration.
type Config struct {
	HomeDir string `yaml:"-"`

	BindAddr     string `yaml:"bind_addr"`
	LogLevel     string `yaml:"log_level"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`

	CORS      CORSConfig       `yaml:"cors"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Stats     StatsConfig      `yaml:"stats"`
	Audit     AuditConfig      `yaml:"audit"`
	Otel      OtelConfig       `yaml:"otel"`
	Schedules []ScheduleConfig `yaml:"schedules"`
}

func defaultConfig() Config {
	return Config{
		BindAddr:     "127.0.0.1:8080",
		LogLevel:     "info",
		MaxBodyBytes: 1 << 20, // 1MB
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 600,
			BurstSize:         60,
		},
		Stats: StatsConfig{CacheTTLSeconds: 60},
		Audit: AuditConfig{RetentionDays: 30},
	}
}

// HomeDir returns the taskd data directory, honoring TASKD_HOME.
func HomeDir() string {
	if override := os.Getenv("TASKD_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".taskd")
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml from the taskd home (creating the directory if
// needed), applies env overrides, and normalizes. A missing file is not an
// error; defaults apply.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create taskd home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TASKD_BIND_ADDR"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("TASKD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func normalize(cfg *Config) {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Stats.CacheTTLSeconds <= 0 {
		cfg.Stats.CacheTTLSeconds = 60
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.BurstSize <= 0 {
		cfg.RateLimit.BurstSize = 60
	}
	if cfg.Audit.RetentionDays < 0 {
		cfg.Audit.RetentionDays = 0
	}
}

// CacheTTL returns the summary cache TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Stats.CacheTTLSeconds) * time.Second
}

// Fingerprint returns a stable hash of the active config, exposed on the
// health surface so operators can tell which config a daemon is running.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "bind=%s|log=%s|body=%d|ttl=%d|cors=%v|rl=%v|audit=%s:%d|schedules=%d",
		c.BindAddr, c.LogLevel, c.MaxBodyBytes, c.Stats.CacheTTLSeconds,
		c.CORS.AllowedOrigins, c.RateLimit, c.Audit.DSN, c.Audit.RetentionDays, len(c.Schedules))
	return fmt.Sprintf("cfg-%x", h.Sum64())
}
