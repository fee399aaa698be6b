// Package config loads the jsonfiled daemon configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// RateLimit configures the per-client token bucket.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Config is the daemon configuration.
type Config struct {
	// Addr is the address the HTTP server listens on.
	Addr string `yaml:"addr"`
	// DataDir holds the served JSON documents, one <name>.json per document.
	DataDir string `yaml:"data_dir"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// RateLimit bounds the request rate per client IP.
	RateLimit RateLimit `yaml:"rate_limit"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Addr:     "localhost:8787",
		DataDir:  "./data",
		LogLevel: "info",
		RateLimit: RateLimit{
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}

// Load reads the YAML configuration at path. A missing file yields the
// defaults; fields absent from the file keep their default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return errors.New("rate_limit.requests_per_second must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		return errors.New("rate_limit.burst must be positive")
	}
	return nil
}
