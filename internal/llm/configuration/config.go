// Package configuration holds the settings of the model invocation pipeline.
package configuration

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors returned by Config.Validate.
var (
	ErrModelRequired       = errors.New("provider model is required")
	ErrMaxAttemptsInvalid  = errors.New("retry max_attempts must be greater than 0")
	ErrIntervalInvalid     = errors.New("retry interval must be >= 0")
	ErrRateInvalid         = errors.New("rate_limit tokens_per_second must be > 0 when enabled")
	ErrBurstInvalid        = errors.New("rate_limit burst_size must be > 0 when enabled")
	ErrMaxInFlightInvalid  = errors.New("max_in_flight must be >= 0")
	ErrCacheTTLInvalid     = errors.New("cache ttl must be > 0 when enabled")
	ErrTemperatureInvalid  = errors.New("temperature must be within [0, 2]")
	ErrProviderTimeoutZero = errors.New("provider timeout must be >= 0")
)

// Config is the complete configuration of the model invocation pipeline.
type Config struct {
	// Provider configuration for the OpenAI-compatible endpoint.
	Provider ProviderConfig `json:"provider"`

	// Retry configuration.
	Retry RetryConfig `json:"retry"`

	// Rate limiting configuration.
	RateLimit RateLimitConfig `json:"rate_limit"`

	// Reply cache configuration.
	Cache CacheConfig `json:"cache"`

	// Observability configuration.
	Observability ObservabilityConfig `json:"observability"`

	// MaxInFlight caps concurrent model calls process-wide. Zero disables the gate.
	MaxInFlight int `json:"max_in_flight"`
}

// ProviderConfig holds endpoint and credential settings.
type ProviderConfig struct {
	Name        string        `json:"name"`
	BaseURL     string        `json:"base_url"`
	APIKey      string        `json:"-"` // Sensitive, not serialized
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"` // Per attempt
}

// RetryConfig controls the bounded, fixed-delay retry of failed calls.
// Every failure is retried until MaxAttempts is reached.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"` // Total attempts including the first
	Interval    time.Duration `json:"interval"`     // Fixed delay between attempts
}

// RateLimitConfig controls the local token bucket in front of the provider.
type RateLimitConfig struct {
	TokensPerSecond float64 `json:"tokens_per_second"`
	BurstSize       int     `json:"burst_size"`
	Enabled         bool    `json:"enabled"`
}

// CacheConfig controls the optional Redis reply cache.
// An empty RedisAddr with Enabled set still disables the cache at startup.
type CacheConfig struct {
	Enabled       bool          `json:"enabled"`
	TTL           time.Duration `json:"ttl"`
	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"-"` // Sensitive field excluded from JSON.
	RedisDB       int           `json:"redis_db"`
}

// ObservabilityConfig controls logging of model traffic.
type ObservabilityConfig struct {
	LogPrompts   bool `json:"log_prompts"`
	LogResponses bool `json:"log_responses"`
}

// Validate checks every section and returns all violations joined.
func (c *Config) Validate() error {
	var errs []error
	if c.Provider.Model == "" {
		errs = append(errs, ErrModelRequired)
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		errs = append(errs, fmt.Errorf("%w, got %v", ErrTemperatureInvalid, c.Provider.Temperature))
	}
	if c.Provider.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w, got %v", ErrProviderTimeoutZero, c.Provider.Timeout))
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.TokensPerSecond <= 0 {
			errs = append(errs, fmt.Errorf("%w, got %v", ErrRateInvalid, c.RateLimit.TokensPerSecond))
		}
		if c.RateLimit.BurstSize <= 0 {
			errs = append(errs, fmt.Errorf("%w, got %d", ErrBurstInvalid, c.RateLimit.BurstSize))
		}
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("%w, got %v", ErrCacheTTLInvalid, c.Cache.TTL))
	}
	if c.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("%w, got %d", ErrMaxInFlightInvalid, c.MaxInFlight))
	}
	return errors.Join(errs...)
}

// Validate checks the retry policy.
func (r RetryConfig) Validate() error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("%w, got %d", ErrMaxAttemptsInvalid, r.MaxAttempts)
	}
	if r.Interval < 0 {
		return fmt.Errorf("%w, got %v", ErrIntervalInvalid, r.Interval)
	}
	return nil
}
