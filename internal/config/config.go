// Package config loads the vecserve server configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration.
type Config struct {
	Listen        string        `yaml:"listen"`
	Log           LogConfig     `yaml:"log"`
	Metrics       MetricsConfig `yaml:"metrics"`
	Limits        LimitsConfig  `yaml:"limits"`
	LatencyWindow int           `yaml:"latency_window"`
	QPSWindow     time.Duration `yaml:"qps_window"`
	S3            S3Config      `yaml:"s3"`
	MinIO         MinIOConfig   `yaml:"minio"`
	Preload       PreloadConfig `yaml:"preload"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LimitsConfig bounds resource usage. Zero means unlimited.
type LimitsConfig struct {
	MemoryBytes        int64   `yaml:"memory_bytes"`
	MaxConcurrentLoads int64   `yaml:"max_concurrent_loads"`
	IOBytesPerSec      int64   `yaml:"io_bytes_per_sec"`
	QueryRPS           float64 `yaml:"query_rps"`
}

// S3Config configures the s3:// scheme.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// MinIOConfig configures the minio:// scheme. Secrets support ${ENV_VAR}
// expansion.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

// PreloadConfig names a snapshot to load at startup.
type PreloadConfig struct {
	Path    string `yaml:"path"`
	IDsPath string `yaml:"ids_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{Enabled: true},
		Limits: LimitsConfig{
			MaxConcurrentLoads: 1,
		},
		LatencyWindow: 1000,
		QPSWindow:     time.Minute,
	}
}

// Load reads path on top of Default. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.expandEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) expandEnvVars() {
	c.MinIO.AccessKey = os.ExpandEnv(c.MinIO.AccessKey)
	c.MinIO.SecretKey = os.ExpandEnv(c.MinIO.SecretKey)
	c.Preload.Path = os.ExpandEnv(c.Preload.Path)
	c.Preload.IDsPath = os.ExpandEnv(c.Preload.IDsPath)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen must not be empty"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Limits.MemoryBytes < 0 {
		errs = append(errs, errors.New("limits.memory_bytes must not be negative"))
	}
	if c.Limits.MaxConcurrentLoads < 0 {
		errs = append(errs, errors.New("limits.max_concurrent_loads must not be negative"))
	}
	if c.Limits.IOBytesPerSec < 0 {
		errs = append(errs, errors.New("limits.io_bytes_per_sec must not be negative"))
	}
	if c.Limits.QueryRPS < 0 {
		errs = append(errs, errors.New("limits.query_rps must not be negative"))
	}
	if c.LatencyWindow < 0 {
		errs = append(errs, errors.New("latency_window must not be negative"))
	}
	if c.QPSWindow < 0 {
		errs = append(errs, errors.New("qps_window must not be negative"))
	}
	if c.Preload.IDsPath != "" && c.Preload.Path == "" {
		errs = append(errs, errors.New("preload.ids_path requires preload.path"))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name onto slog.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}
