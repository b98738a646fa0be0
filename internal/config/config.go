// Package config loads the static runtime configuration for both
// entrypoints (run, backfill): venue endpoints are frozen in
// internal/catalog, but everything environment-specific — which
// assets/markets to run, sink wiring, the admin key — lives here.
// Mirrors the teacher's internal/application config loaders:
// os.ReadFile + yaml.Unmarshal + a Validate() method per struct.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AssetMarket is one (asset, market) pair the aggregator should run.
type AssetMarket struct {
	Asset      string `yaml:"asset"`
	MarketType string `yaml:"market_type"`
}

// PostgresConfig configures the durable persistence sink.
type PostgresConfig struct {
	DSN           string `yaml:"dsn"`
	MaxConns      int    `yaml:"max_conns"`
	RetentionDays int    `yaml:"retention_days"`
}

// RedisConfig configures the latest-bar read-through cache.
type RedisConfig struct {
	Addr              string `yaml:"addr"`
	DB                int    `yaml:"db"`
	DefaultTTLSeconds int    `yaml:"default_ttl_seconds"`
}

func (r RedisConfig) DefaultTTL() time.Duration {
	return time.Duration(r.DefaultTTLSeconds) * time.Second
}

// BackfillConfig holds a backfill window cap and a per-venue request
// delay. Validate fills their defaults; the backfill command does not
// read them (backfill.Service applies its own fixed 24h cap and each
// fetcher its own pacing).
type BackfillConfig struct {
	MaxWindowHours int `yaml:"max_window_hours"`
	RatePerVenueMs int `yaml:"rate_per_venue_ms"`
}

// Config is the top-level runtime configuration, loaded once at
// startup by both the `run` and `backfill` CLI subcommands.
type Config struct {
	Environment string `yaml:"environment"` // "development" or "production"
	AdminKey    string `yaml:"admin_key"`

	Assets []AssetMarket `yaml:"assets"`

	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Backfill BackfillConfig `yaml:"backfill"`
}

// LoadConfig reads, unmarshals, and validates the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &c, nil
}

// Validate checks the configuration for internal consistency, per the
// teacher's Validate() error convention.
func (c *Config) Validate() error {
	if c.Environment != "development" && c.Environment != "production" {
		return fmt.Errorf("environment must be \"development\" or \"production\", got %q", c.Environment)
	}
	if c.Environment == "production" && c.AdminKey == "" {
		return fmt.Errorf("admin_key is required in production")
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("at least one asset/market pair is required")
	}
	for i, am := range c.Assets {
		if am.Asset == "" {
			return fmt.Errorf("assets[%d]: asset is required", i)
		}
		if am.MarketType != "SPOT" && am.MarketType != "PERP" {
			return fmt.Errorf("assets[%d]: market_type must be SPOT or PERP, got %q", i, am.MarketType)
		}
	}
	if c.Backfill.MaxWindowHours <= 0 {
		c.Backfill.MaxWindowHours = 24
	}
	if c.Backfill.RatePerVenueMs <= 0 {
		c.Backfill.RatePerVenueMs = 200
	}
	if c.Postgres.RetentionDays <= 0 {
		c.Postgres.RetentionDays = 90
	}
	return nil
}

// RequireAdminKey reports whether a mutation request must present a
// matching X-Admin-Key header (spec.md §6): mandatory in production,
// optional in development when unset.
func (c *Config) RequireAdminKey() bool {
	return c.Environment == "production" || c.AdminKey != ""
}
