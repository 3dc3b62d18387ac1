package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "accounts.json", cfg.AccountPoolFilePath)
	assert.Equal(t, 3, cfg.MaxErrorCount)
	assert.Equal(t, 3, cfg.RequestMaxRetries)
	assert.Equal(t, 1*time.Second, cfg.RequestBaseDelay)
	assert.Equal(t, 10, cfg.CronNearMinutes)
	assert.True(t, cfg.CronRefreshToken)
	assert.False(t, cfg.EnableThinkingByDefault)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("REQUIRED_API_KEY", "sk-test")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("MAX_ERROR_COUNT", "5")
	t.Setenv("REQUEST_MAX_RETRIES", "7")
	t.Setenv("REQUEST_BASE_DELAY", "250ms")
	t.Setenv("CRON_NEAR_MINUTES", "2")
	t.Setenv("CRON_REFRESH_TOKEN", "false")
	t.Setenv("ENABLE_THINKING_BY_DEFAULT", "true")
	t.Setenv("ENABLE_VERBOSE_LOGGING", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.RequiredAPIKey)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 5, cfg.MaxErrorCount)
	assert.Equal(t, 7, cfg.RequestMaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RequestBaseDelay)
	assert.Equal(t, 2, cfg.CronNearMinutes)
	assert.False(t, cfg.CronRefreshToken)
	assert.True(t, cfg.EnableThinkingByDefault)
	assert.True(t, cfg.EnableVerboseLogging)
}

func TestLoadInvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("MAX_ERROR_COUNT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxErrorCount)
}
