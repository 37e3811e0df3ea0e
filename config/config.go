// Package config manages application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"ytplsync/internal/retry"
)

// FileName is the config file looked up in the working directory and in
// ~/.config/ytplsync when no explicit path is given.
const FileName = "ytplsync.yaml"

// Config holds all application configuration for playlist synchronization.
type Config struct {
	// CredentialsFile is the OAuth client secrets file downloaded from the Google Cloud Console.
	CredentialsFile string `yaml:"credentials_file"`
	// TokenFile stores the user's OAuth token between runs.
	TokenFile string `yaml:"token_file"`
	// StorePath is the JSON state store (channel/video caches, run history, quota ledger).
	StorePath string `yaml:"store_path"`
	// APIKey is optional; read-only commands use it instead of OAuth when set.
	APIKey string `yaml:"api_key"`

	// DailyQuota is the Data API daily unit budget (default 10000).
	DailyQuota int `yaml:"daily_quota"`
	// QuotaReserve is the number of units never spent by this tool.
	QuotaReserve int `yaml:"quota_reserve"`

	// CacheTTL is how long fetched channel uploads are reused.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// UseRSS enables the quota-free RSS feed for recent uploads.
	UseRSS bool `yaml:"use_rss"`

	// InsertInterval is the minimum gap between playlist inserts.
	InsertInterval time.Duration `yaml:"insert_interval"`
	// LongPauseEvery inserts a LongPause after this many inserts (0 disables).
	LongPauseEvery int `yaml:"long_pause_every"`
	// LongPause is the extra pause taken every LongPauseEvery inserts.
	LongPause time.Duration `yaml:"long_pause"`

	// DefaultLookback is used as the cutoff when a playlist has no items and no history.
	DefaultLookback time.Duration `yaml:"default_lookback"`
	// MaxAge clamps the cutoff so no video older than this is added (0 = unlimited).
	MaxAge time.Duration `yaml:"max_age"`
	// PlaylistPrivacy is the privacy status of newly created playlists.
	PlaylistPrivacy string `yaml:"playlist_privacy"`

	// RequestsPerSecond caps Data API calls.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`

	// LogLevel is a zerolog level name ("debug", "info", ...).
	LogLevel string `yaml:"log_level"`
	// LogFormat is "console" or "json".
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		CredentialsFile:   "credentials.json",
		TokenFile:         "token.json",
		StorePath:         filepath.Join("json_cache", "ytplsync.json"),
		DailyQuota:        10000,
		QuotaReserve:      0,
		CacheTTL:          168 * time.Hour,
		InsertInterval:    200 * time.Millisecond,
		LongPauseEvery:    10,
		LongPause:         1 * time.Second,
		DefaultLookback:   14 * 24 * time.Hour,
		MaxAge:            0,
		PlaylistPrivacy:   "private",
		RequestsPerSecond: 5,
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// Load loads configuration from environment variables, config file, and applies defaults.
// Priority: env vars > config file > defaults. An explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else if err := cfg.loadFromFile(); err != nil {
		// Config file is optional
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile attempts to load config from the working directory or the user config directory.
func (c *Config) loadFromFile() error {
	paths := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ytplsync", FileName))
	}

	for _, path := range paths {
		err := c.loadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return err
	}

	return os.ErrNotExist
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("YTPLSYNC_CREDENTIALS"); v != "" {
		c.CredentialsFile = v
	}
	if v := os.Getenv("YTPLSYNC_TOKEN"); v != "" {
		c.TokenFile = v
	}
	if v := os.Getenv("YTPLSYNC_STORE"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("YTPLSYNC_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("YTPLSYNC_DAILY_QUOTA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DailyQuota = n
		}
	}
	if v := os.Getenv("YTPLSYNC_QUOTA_RESERVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.QuotaReserve = n
		}
	}
	if v := os.Getenv("YTPLSYNC_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CacheTTL = d
		}
	}
	if v := os.Getenv("YTPLSYNC_USE_RSS"); v != "" {
		c.UseRSS = v == "true" || v == "1"
	}
	if v := os.Getenv("YTPLSYNC_INSERT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.InsertInterval = d
		}
	}
	if v := os.Getenv("YTPLSYNC_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.MaxAge = d
		}
	}
	if v := os.Getenv("YTPLSYNC_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("YTPLSYNC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("YTPLSYNC_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
}

// Validate checks that configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.DailyQuota <= 0 {
		return fmt.Errorf("daily_quota must be positive")
	}
	if c.QuotaReserve < 0 || c.QuotaReserve >= c.DailyQuota {
		return fmt.Errorf("quota_reserve must be in [0, daily_quota)")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must be non-negative")
	}
	if c.InsertInterval < 0 || c.LongPause < 0 {
		return fmt.Errorf("insert pacing durations must be non-negative")
	}
	if c.LongPauseEvery < 0 {
		return fmt.Errorf("long_pause_every must be non-negative")
	}
	if c.DefaultLookback <= 0 {
		return fmt.Errorf("default_lookback must be positive")
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("max_age must be non-negative")
	}
	switch c.PlaylistPrivacy {
	case "private", "unlisted", "public":
	default:
		return fmt.Errorf("playlist_privacy must be private, unlisted or public")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	if c.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json")
	}
	return nil
}

// Retry returns the retry policy described by the configuration.
func (c *Config) Retry() retry.Config {
	return retry.Config{
		MaxRetries:     c.MaxRetries,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		Multiplier:     c.BackoffMultiplier,
		JitterFraction: retry.DefaultConfig().JitterFraction,
	}
}
