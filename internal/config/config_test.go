package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
environment: development
assets:
  - asset: BTC
    market_type: SPOT
  - asset: ETH
    market_type: PERP
postgres:
  dsn: "postgres://localhost/compositefeed"
redis:
  addr: "localhost:6379"
`)

	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Len(t, c.Assets, 2)
	assert.Equal(t, 24, c.Backfill.MaxWindowHours)
	assert.Equal(t, 200, c.Backfill.RatePerVenueMs)
	assert.Equal(t, 90, c.Postgres.RetentionDays)
	assert.False(t, c.RequireAdminKey())
}

func TestLoadConfig_ProductionRequiresAdminKey(t *testing.T) {
	path := writeConfig(t, `
environment: production
assets:
  - asset: BTC
    market_type: SPOT
`)

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "admin_key")
}

func TestLoadConfig_RejectsBadMarketType(t *testing.T) {
	path := writeConfig(t, `
environment: development
assets:
  - asset: BTC
    market_type: FUTURES
`)

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "market_type")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestConfig_RequireAdminKey_ProductionAlwaysTrue(t *testing.T) {
	c := &Config{Environment: "production", AdminKey: "secret"}
	assert.True(t, c.RequireAdminKey())
}

func TestConfig_RequireAdminKey_DevelopmentOptional(t *testing.T) {
	withKey := &Config{Environment: "development", AdminKey: "secret"}
	withoutKey := &Config{Environment: "development"}
	assert.True(t, withKey.RequireAdminKey())
	assert.False(t, withoutKey.RequireAdminKey())
}
