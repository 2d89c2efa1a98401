// Package config provides configuration loading and validation for the flux feeder.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file. Environment variables referenced
// in the file (e.g. relay credentials) are expanded before parsing.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Feed defaults
	if cfg.Feeds.StaleTimeout.ToDuration() == 0 {
		cfg.Feeds.StaleTimeout = Duration(2 * time.Minute)
	}
	if cfg.Feeds.TimestampPolicy == "" {
		cfg.Feeds.TimestampPolicy = TimestampPolicyNow
	}
	if cfg.Feeds.PriceFileDir == "" {
		cfg.Feeds.PriceFileDir = "."
	}

	// Submitter defaults
	if cfg.Submitters.Default.MinValueChangeForNewRound == 0 {
		cfg.Submitters.Default.MinValueChangeForNewRound = 100
	}

	// API defaults
	if cfg.API.Enabled && cfg.API.Addr == "" {
		cfg.API.Addr = ":8080"
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}

	// Notify defaults
	if cfg.Notify.Timeout.ToDuration() == 0 {
		cfg.Notify.Timeout = Duration(10 * time.Second)
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// SubmitterFor returns the submitter configuration for a pair, falling back
// to the default entry when the pair has no configuration or names no sources.
func (c *Config) SubmitterFor(pair string) SubmitterConfig {
	sc, ok := c.Submitters.Pairs[pair]
	if !ok || len(sc.Sources) == 0 {
		sc = c.Submitters.Default
	}
	if sc.MinValueChangeForNewRound == 0 {
		sc.MinValueChangeForNewRound = c.Submitters.Default.MinValueChangeForNewRound
	}
	if sc.StaleTimeout.ToDuration() == 0 {
		sc.StaleTimeout = c.Feeds.StaleTimeout
	}
	if sc.AcceptWindow == nil {
		sc.AcceptWindow = &c.Feeds.AcceptWindow
	}
	if sc.TimestampPolicy == "" {
		sc.TimestampPolicy = c.Feeds.TimestampPolicy
	}
	return sc
}

