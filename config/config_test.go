package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10000, cfg.DailyQuota)
	assert.Equal(t, 168*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "private", cfg.PlaylistPrivacy)
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `
credentials_file: secrets/client.json
daily_quota: 5000
quota_reserve: 500
cache_ttl: 24h
insert_interval: 500ms
use_rss: true
playlist_privacy: unlisted
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secrets/client.json", cfg.CredentialsFile)
	assert.Equal(t, 5000, cfg.DailyQuota)
	assert.Equal(t, 500, cfg.QuotaReserve)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.InsertInterval)
	assert.True(t, cfg.UseRSS)
	assert.Equal(t, "unlisted", cfg.PlaylistPrivacy)
	// untouched fields keep defaults
	assert.Equal(t, "token.json", cfg.TokenFile)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ytplsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("daily_quota: 5000\n"), 0o644))

	t.Setenv("YTPLSYNC_DAILY_QUOTA", "7000")
	t.Setenv("YTPLSYNC_STORE", "/tmp/state.json")
	t.Setenv("YTPLSYNC_USE_RSS", "1")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.DailyQuota)
	assert.Equal(t, "/tmp/state.json", cfg.StorePath)
	assert.True(t, cfg.UseRSS)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("daily_quota: [oops\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero quota", func(c *Config) { c.DailyQuota = 0 }},
		{"reserve above quota", func(c *Config) { c.QuotaReserve = c.DailyQuota }},
		{"negative reserve", func(c *Config) { c.QuotaReserve = -1 }},
		{"negative cache ttl", func(c *Config) { c.CacheTTL = -time.Second }},
		{"negative interval", func(c *Config) { c.InsertInterval = -time.Second }},
		{"zero lookback", func(c *Config) { c.DefaultLookback = 0 }},
		{"bad privacy", func(c *Config) { c.PlaylistPrivacy = "secret" }},
		{"zero rps", func(c *Config) { c.RequestsPerSecond = 0 }},
		{"max backoff below initial", func(c *Config) { c.MaxBackoff = c.InitialBackoff / 2 }},
		{"multiplier too small", func(c *Config) { c.BackoffMultiplier = 1 }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 7
	r := cfg.Retry()
	assert.Equal(t, 7, r.MaxRetries)
	assert.Equal(t, cfg.InitialBackoff, r.InitialBackoff)
	assert.Equal(t, cfg.BackoffMultiplier, r.Multiplier)
}
