package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	os.Unsetenv("SNAPSHOT_BACKEND")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8055", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "file", cfg.Snapshot.Backend)
	assert.Equal(t, 60*time.Second, cfg.Snapshot.CacheTTL)
	assert.Equal(t, 8*time.Second, cfg.Router.LiveTimeout)
	assert.False(t, cfg.Router.PreferEnrichedOverFair)
	assert.False(t, cfg.Router.AllowLiveFallback)
	assert.Equal(t, int64(10000), cfg.Quality.HighVolume)
	assert.Equal(t, 0.20, cfg.Quality.MinRelativeChange)
	assert.Contains(t, cfg.Collector.Symbols, "SPY")
}

func TestLoadWithCustomValues(t *testing.T) {
	os.Setenv("PORT", "9000")
	os.Setenv("ENV", "production")
	os.Setenv("ROUTER_PREFER_ENRICHED", "true")
	os.Setenv("LIVE_TIMEOUT", "2s")
	os.Setenv("COLLECT_SYMBOLS", " spy, qqq ,,")

	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("ENV")
		os.Unsetenv("ROUTER_PREFER_ENRICHED")
		os.Unsetenv("LIVE_TIMEOUT")
		os.Unsetenv("COLLECT_SYMBOLS")
	}()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.True(t, cfg.Router.PreferEnrichedOverFair)
	assert.Equal(t, 2*time.Second, cfg.Router.LiveTimeout)
	assert.Equal(t, []string{"SPY", "QQQ"}, cfg.Collector.Symbols)
}

func TestValidatePostgresBackendNeedsURL(t *testing.T) {
	os.Setenv("SNAPSHOT_BACKEND", "postgres")
	os.Unsetenv("DATABASE_URL")
	defer os.Unsetenv("SNAPSHOT_BACKEND")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateUnknownBackend(t *testing.T) {
	os.Setenv("SNAPSHOT_BACKEND", "sqlite")
	defer os.Unsetenv("SNAPSHOT_BACKEND")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateInvalidEnv(t *testing.T) {
	os.Setenv("ENV", "invalid")
	defer os.Unsetenv("ENV")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvAsDuration(t *testing.T) {
	os.Setenv("TEST_DURATION", "2h")
	defer os.Unsetenv("TEST_DURATION")

	assert.Equal(t, 2*time.Hour, getEnvAsDuration("TEST_DURATION", "1h"))
	assert.Equal(t, time.Hour, getEnvAsDuration("TEST_DURATION_MISSING", "1h"))
}

func TestGetEnvAsFloat(t *testing.T) {
	os.Setenv("TEST_FLOAT", "0.35")
	defer os.Unsetenv("TEST_FLOAT")

	assert.Equal(t, 0.35, getEnvAsFloat("TEST_FLOAT", 0.2))

	os.Setenv("TEST_FLOAT", "abc")
	assert.Equal(t, 0.2, getEnvAsFloat("TEST_FLOAT", 0.2))
}

func TestGetEnvAsBool(t *testing.T) {
	os.Setenv("TEST_BOOL", "true")
	defer os.Unsetenv("TEST_BOOL")

	assert.True(t, getEnvAsBool("TEST_BOOL", false))
}
