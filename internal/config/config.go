// Package config loads service configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Regions is a comma-separated list of shard region keys. The
	// default region always exists, listed or not.
	Regions       string `env:"REGIONS" default:""`
	DefaultRegion string `env:"DEFAULT_REGION" default:"default"`

	// OverflowThreshold is the waiting-pool size above which any two
	// sessions are paired regardless of preference.
	OverflowThreshold int `env:"OVERFLOW_THRESHOLD" default:"80"`

	MaxWebSocketConnections int64   `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"32"`
	ConnectionRatePerIP     float64 `env:"CONNECTION_RATE_PER_IP" default:"10"`
	ConnectionBurstPerIP    int     `env:"CONNECTION_BURST_PER_IP" default:"10"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DefaultRegion == "" {
		return fmt.Errorf("DEFAULT_REGION must not be empty")
	}
	if cfg.OverflowThreshold < 2 {
		return fmt.Errorf("OVERFLOW_THRESHOLD must be at least 2, got %d", cfg.OverflowThreshold)
	}
	if cfg.MaxWebSocketConnections < 1 {
		return fmt.Errorf("MAX_WEBSOCKET_CONNECTIONS must be positive, got %d", cfg.MaxWebSocketConnections)
	}
	if cfg.MaxConnectionsPerIP < 1 {
		return fmt.Errorf("MAX_CONNECTIONS_PER_IP must be positive, got %d", cfg.MaxConnectionsPerIP)
	}
	if cfg.ConnectionRatePerIP <= 0 {
		return fmt.Errorf("CONNECTION_RATE_PER_IP must be positive, got %g", cfg.ConnectionRatePerIP)
	}
	if cfg.ConnectionBurstPerIP < 1 {
		return fmt.Errorf("CONNECTION_BURST_PER_IP must be positive, got %d", cfg.ConnectionBurstPerIP)
	}
	return nil
}

// RegionList returns the configured shard regions with duplicates and
// blanks removed. The default region is not included.
func (c *Config) RegionList() []string {
	seen := make(map[string]struct{})
	var regions []string
	for _, r := range strings.Split(c.Regions, ",") {
		r = strings.TrimSpace(r)
		if r == "" || r == c.DefaultRegion {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		regions = append(regions, r)
	}
	return regions
}
