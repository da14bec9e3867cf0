// Package config handles YAML config file loading for the report engine.
package config

import (
	"fmt"
	"time"

	"github.com/justapithecus/gitbrag/retry"
)

// Defaults for the recognized configuration surface.
const (
	DefaultFetchConcurrencyPrimary   = 5
	DefaultFetchConcurrencySecondary = 10
	DefaultIntermediateTTLSeconds    = 21600
	DefaultStaleAgeSeconds           = 86400
	DefaultTaskLeaseSeconds          = 300
	DefaultRetryMaxAttempts          = 3
	DefaultRetryJitterFraction       = 0.25
)

// Concurrency limits are bounded so a misconfigured deployment cannot hammer
// the upstream API.
const (
	MinFetchConcurrency = 1
	MaxFetchConcurrency = 20
)

// Config represents a gitbrag.yaml configuration file.
// All values are optional; zero values take documented defaults.
type Config struct {
	Cache  CacheConfig  `yaml:"cache"`
	GitHub GitHubConfig `yaml:"github"`

	// FetchConcurrencyPrimary bounds in-flight per-PR metric fetches (1-20).
	FetchConcurrencyPrimary int `yaml:"fetch_concurrency_primary"`
	// FetchConcurrencySecondary bounds in-flight per-repo fetches (1-20).
	FetchConcurrencySecondary int `yaml:"fetch_concurrency_secondary"`

	// IntermediateTTLSeconds is the TTL for raw upstream data (default 6h).
	IntermediateTTLSeconds int `yaml:"intermediate_ttl_seconds"`
	// StaleAgeSeconds is the age past which a committed report is stale (default 24h).
	StaleAgeSeconds int `yaml:"stale_age_seconds"`
	// TaskLeaseSeconds is the generation lease TTL (default 300s).
	TaskLeaseSeconds int `yaml:"task_lease_seconds"`

	// RetryMaxAttempts is the number of additional attempts after the first.
	RetryMaxAttempts int `yaml:"retry_max_attempts"`
	// RetryBaseDelaysSeconds is the pre-jitter delay schedule (default [1,2,4]).
	RetryBaseDelaysSeconds []int `yaml:"retry_base_delays_seconds"`
	// RetryJitterFraction perturbs each delay by ±fraction (default 0.25).
	RetryJitterFraction float64 `yaml:"retry_jitter_fraction"`
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	// Backend is "memory" or "redis" (default memory).
	Backend string `yaml:"backend"`
	// RedisURL is required when Backend is "redis".
	RedisURL string `yaml:"redis_url"`
}

// GitHubConfig holds upstream API settings.
type GitHubConfig struct {
	// Token is the API token. Supports ${VAR} expansion from the file.
	Token string `yaml:"token"`
	// BaseURL overrides the REST API root (for test servers).
	BaseURL string `yaml:"base_url"`
	// GraphQLURL overrides the GraphQL endpoint (for test servers).
	GraphQLURL string `yaml:"graphql_url"`
}

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.FetchConcurrencyPrimary == 0 {
		c.FetchConcurrencyPrimary = DefaultFetchConcurrencyPrimary
	}
	if c.FetchConcurrencySecondary == 0 {
		c.FetchConcurrencySecondary = DefaultFetchConcurrencySecondary
	}
	if c.IntermediateTTLSeconds == 0 {
		c.IntermediateTTLSeconds = DefaultIntermediateTTLSeconds
	}
	if c.StaleAgeSeconds == 0 {
		c.StaleAgeSeconds = DefaultStaleAgeSeconds
	}
	if c.TaskLeaseSeconds == 0 {
		c.TaskLeaseSeconds = DefaultTaskLeaseSeconds
	}
	if c.RetryMaxAttempts == 0 {
		c.RetryMaxAttempts = DefaultRetryMaxAttempts
	}
	if len(c.RetryBaseDelaysSeconds) == 0 {
		c.RetryBaseDelaysSeconds = []int{1, 2, 4}
	}
	if c.RetryJitterFraction == 0 {
		c.RetryJitterFraction = DefaultRetryJitterFraction
	}
}

// Validate checks ranges and backend requirements. Call after ApplyDefaults.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache backend %q requires redis_url", c.Cache.Backend)
		}
	default:
		return fmt.Errorf("unknown cache backend %q (must be memory or redis)", c.Cache.Backend)
	}

	if err := validateConcurrency("fetch_concurrency_primary", c.FetchConcurrencyPrimary); err != nil {
		return err
	}
	if err := validateConcurrency("fetch_concurrency_secondary", c.FetchConcurrencySecondary); err != nil {
		return err
	}

	if c.IntermediateTTLSeconds < 0 {
		return fmt.Errorf("intermediate_ttl_seconds must be >= 0, got %d", c.IntermediateTTLSeconds)
	}
	if c.StaleAgeSeconds <= 0 {
		return fmt.Errorf("stale_age_seconds must be > 0, got %d", c.StaleAgeSeconds)
	}
	if c.TaskLeaseSeconds <= 0 {
		return fmt.Errorf("task_lease_seconds must be > 0, got %d", c.TaskLeaseSeconds)
	}
	if c.RetryMaxAttempts < 0 {
		return fmt.Errorf("retry_max_attempts must be >= 0, got %d", c.RetryMaxAttempts)
	}
	for i, d := range c.RetryBaseDelaysSeconds {
		if d <= 0 {
			return fmt.Errorf("retry_base_delays_seconds[%d] must be > 0, got %d", i, d)
		}
	}
	if c.RetryJitterFraction < 0 || c.RetryJitterFraction >= 1 {
		return fmt.Errorf("retry_jitter_fraction must be in [0, 1), got %v", c.RetryJitterFraction)
	}
	return nil
}

func validateConcurrency(name string, v int) error {
	if v < MinFetchConcurrency || v > MaxFetchConcurrency {
		return fmt.Errorf("%s must be in [%d, %d], got %d", name, MinFetchConcurrency, MaxFetchConcurrency, v)
	}
	return nil
}

// IntermediateTTL returns the intermediate cache TTL as a duration.
func (c *Config) IntermediateTTL() time.Duration {
	return time.Duration(c.IntermediateTTLSeconds) * time.Second
}

// StaleAge returns the report staleness threshold as a duration.
func (c *Config) StaleAge() time.Duration {
	return time.Duration(c.StaleAgeSeconds) * time.Second
}

// TaskLease returns the generation lease TTL as a duration.
func (c *Config) TaskLease() time.Duration {
	return time.Duration(c.TaskLeaseSeconds) * time.Second
}

// RetryPolicy builds the retry policy from the configured schedule.
// The base-delay list is interpreted as a geometric schedule: the first entry
// is the initial delay; the ratio of the first two entries is the multiplier.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.Policy{
		MaxRetries:     c.RetryMaxAttempts,
		InitialDelay:   retry.DefaultInitialDelay,
		Multiplier:     retry.DefaultMultiplier,
		JitterFraction: c.RetryJitterFraction,
	}
	if len(c.RetryBaseDelaysSeconds) > 0 {
		p.InitialDelay = time.Duration(c.RetryBaseDelaysSeconds[0]) * time.Second
	}
	if len(c.RetryBaseDelaysSeconds) > 1 && c.RetryBaseDelaysSeconds[0] > 0 {
		p.Multiplier = float64(c.RetryBaseDelaysSeconds[1]) / float64(c.RetryBaseDelaysSeconds[0])
	}
	return p
}
