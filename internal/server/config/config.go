package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the server configuration, loaded from environment variables.
// An empty DatabaseURL selects the in-memory record store.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	StoragePath string `envconfig:"STORAGE_PATH" default:"./storage/blobs"`
	BaseURL     string `envconfig:"BASE_URL" default:"http://localhost:8080"`

	MaxFileSize int64 `envconfig:"MAX_FILE_SIZE" default:"1073741824"` // 1GB

	// Bounds on per-share limits. Requested values outside these ranges are
	// clamped, not rejected.
	MinDownloads     int `envconfig:"MIN_DOWNLOADS" default:"1"`
	MaxDownloads     int `envconfig:"MAX_DOWNLOADS" default:"100"`
	DefaultDownloads int `envconfig:"DEFAULT_DOWNLOADS" default:"1"`

	MinExpiryHours     int `envconfig:"MIN_EXPIRY_HOURS" default:"1"`
	MaxExpiryHours     int `envconfig:"MAX_EXPIRY_HOURS" default:"168"`
	DefaultExpiryHours int `envconfig:"DEFAULT_EXPIRY_HOURS" default:"24"`

	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"10"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"20"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.MinDownloads < 1 || cfg.MaxDownloads < cfg.MinDownloads {
		return nil, fmt.Errorf("invalid download bounds [%d, %d]", cfg.MinDownloads, cfg.MaxDownloads)
	}
	if cfg.MinExpiryHours < 1 || cfg.MaxExpiryHours < cfg.MinExpiryHours {
		return nil, fmt.Errorf("invalid expiry bounds [%d, %d]", cfg.MinExpiryHours, cfg.MaxExpiryHours)
	}
	return cfg, nil
}

// ClampDownloads bounds a requested download limit to the configured range,
// substituting the default when the request is absent or non-positive.
func (c *Config) ClampDownloads(requested int) int {
	if requested <= 0 {
		requested = c.DefaultDownloads
	}
	return clamp(requested, c.MinDownloads, c.MaxDownloads)
}

// ClampExpiry bounds a requested expiry in hours to the configured range and
// returns it as a duration.
func (c *Config) ClampExpiry(requestedHours int) time.Duration {
	if requestedHours <= 0 {
		requestedHours = c.DefaultExpiryHours
	}
	return time.Duration(clamp(requestedHours, c.MinExpiryHours, c.MaxExpiryHours)) * time.Hour
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
