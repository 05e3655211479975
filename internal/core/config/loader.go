package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Load builds the configuration: defaults, then the YAML file at path (if any), then
// DEEPWIKI_* environment overrides. The result is validated.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *AppConfig, lookup lookupFunc) error {
	var errs []string
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}
	// Durations given in (possibly fractional) seconds.
	seconds := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = time.Duration(f * float64(time.Second))
		}
	}

	str("DEEPWIKI_API_URL", &cfg.API.BaseURL)
	str("DEEPWIKI_API_KEY", &cfg.API.APIKey)

	var pollMS int
	integer("DEEPWIKI_POLL_INTERVAL_MS", &pollMS)
	if pollMS > 0 {
		cfg.Poll.Interval = time.Duration(pollMS) * time.Millisecond
	}
	integer("DEEPWIKI_POLL_MAX_ATTEMPTS", &cfg.Poll.MaxAttempts)

	seconds("DEEPWIKI_CONNECT_TIMEOUT", &cfg.Timeouts.Connect)
	seconds("DEEPWIKI_READ_TIMEOUT", &cfg.Timeouts.Read)
	seconds("DEEPWIKI_WRITE_TIMEOUT", &cfg.Timeouts.Write)
	seconds("DEEPWIKI_POOL_TIMEOUT", &cfg.Timeouts.Pool)

	integer("DEEPWIKI_MAX_CONCURRENT_QUERIES", &cfg.Concurrency.MaxInFlight)
	boolean("DEEPWIKI_ENABLE_CACHING", &cfg.Cache.Enabled)
	str("DEEPWIKI_REDIS_URL", &cfg.Redis.URL)
	str("DEEPWIKI_LOG_LEVEL", &cfg.Logging.Level)
	str("DEEPWIKI_LOG_FORMAT", &cfg.Logging.Format)
	integer("DEEPWIKI_PORT", &cfg.Server.Port)

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}
