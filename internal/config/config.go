// Package config loads renderer host configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Capture   CaptureConfig
	Logging   LogConfig
	RateLimit RateLimitConfig

	// Strict makes protocol invariant violations fatal instead of
	// logged-and-ignored. Enabled in development builds.
	Strict bool `envconfig:"STRICT_INVARIANTS" default:"false"`
}

// ServerConfig holds the control server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8600"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// CaptureConfig holds deferred page-capture timing.
//
// The short delay runs after the page reports it stopped loading; the
// forced delay is the fallback for pages that never quiesce.
type CaptureConfig struct {
	Delay       time.Duration `envconfig:"CAPTURE_DELAY" default:"500ms"`
	ForcedDelay time.Duration `envconfig:"CAPTURE_FORCED_DELAY" default:"6s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig bounds inbound controller commands per connection.
type RateLimitConfig struct {
	CommandsPerSecond int  `envconfig:"RATE_LIMIT_CPS" default:"200"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"400"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8600",
			Host: "127.0.0.1",
		},
		Capture: CaptureConfig{
			Delay:       500 * time.Millisecond,
			ForcedDelay: 6 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			CommandsPerSecond: 200,
			Burst:             400,
			Enabled:           true,
		},
	}
}
