package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "TOKEN_TTL", "QUOTE_TIMEOUT", "STARTING_CASH")
	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 60*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 8*time.Second, cfg.QuoteTimeout)
	cash, err := cfg.StartingCashMinor()
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), cash)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TOKEN_TTL", "15m")
	t.Setenv("STARTING_CASH", "2500.50")
	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	cash, err := cfg.StartingCashMinor()
	require.NoError(t, err)
	assert.Equal(t, int64(250050), cash)
}

func TestLoadRejectsBadStartingCash(t *testing.T) {
	t.Setenv("STARTING_CASH", "-10")
	_, err := Load("does-not-exist.env")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		previous, ok := os.LookupEnv(key)
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unsetenv %s: %v", key, err)
		}
		if ok {
			t.Cleanup(func() { _ = os.Setenv(key, previous) })
		}
	}
}
