package config

import (
	"fmt"
	"time"

	"github.com/vietddude/deepwiki/internal/httpapi"
	"github.com/vietddude/deepwiki/internal/infra/cache"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      httpapi.Config    `yaml:"server"`
	API         APIConfig         `yaml:"api"`
	Poll        PollConfig        `yaml:"poll"`
	Timeouts    TimeoutConfig     `yaml:"timeouts"`
	Retry       RetryConfig       `yaml:"retry"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Cache       CacheConfig       `yaml:"cache"`
	Redis       cache.RedisConfig `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// APIConfig locates the remote service.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// PollConfig controls status polling.
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// TimeoutConfig holds per-phase budgets for one network attempt.
type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect"`
	Write   time.Duration `yaml:"write"`
	Read    time.Duration `yaml:"read"`
	Pool    time.Duration `yaml:"pool"`
}

// RetryConfig controls retries of one logical call.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	Jitter        float64       `yaml:"jitter"`
	MaxRetryAfter time.Duration `yaml:"max_retry_after"`
}

// ConcurrencyConfig bounds outbound work.
type ConcurrencyConfig struct {
	MaxInFlight        int     `yaml:"max_in_flight"`
	MaxConnections     int     `yaml:"max_connections"`
	MaxIdleConnections int     `yaml:"max_idle_connections"`
	RateLimit          float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst          int     `yaml:"rate_burst"`
}

// CacheConfig controls the terminal-result store.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the configuration used when nothing is set.
func Default() *AppConfig {
	return &AppConfig{
		Server: httpapi.Config{Port: 8080},
		API:    APIConfig{BaseURL: "https://api.devin.ai"},
		Poll:   PollConfig{Interval: 2 * time.Second, MaxAttempts: 120},
		Timeouts: TimeoutConfig{
			Connect: 10 * time.Second,
			Write:   10 * time.Second,
			Read:    180 * time.Second,
			Pool:    5 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			BaseDelay:     2 * time.Second,
			MaxDelay:      10 * time.Second,
			Jitter:        0.2,
			MaxRetryAfter: 60 * time.Second,
		},
		Concurrency: ConcurrencyConfig{
			MaxInFlight:        5,
			MaxConnections:     20,
			MaxIdleConnections: 10,
			RateBurst:          1,
		},
		Cache:   CacheConfig{Enabled: true, TTL: time.Hour, MaxEntries: 1000},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate rejects settings the service cannot run with.
func (c *AppConfig) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Poll.Interval <= 0 || c.Poll.MaxAttempts < 1 {
		return fmt.Errorf("poll interval and max_attempts must be positive")
	}
	for name, d := range map[string]time.Duration{
		"connect": c.Timeouts.Connect,
		"write":   c.Timeouts.Write,
		"read":    c.Timeouts.Read,
		"pool":    c.Timeouts.Pool,
	} {
		if d <= 0 {
			return fmt.Errorf("timeouts.%s must be positive, got %s", name, d)
		}
	}
	if c.Concurrency.MaxInFlight < 1 {
		return fmt.Errorf("concurrency.max_in_flight must be at least 1, got %d", c.Concurrency.MaxInFlight)
	}
	if c.Concurrency.MaxConnections < c.Concurrency.MaxInFlight {
		return fmt.Errorf("concurrency.max_connections (%d) must not be below max_in_flight (%d)",
			c.Concurrency.MaxConnections, c.Concurrency.MaxInFlight)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}
