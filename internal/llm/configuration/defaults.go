package configuration

import (
	"time"
)

// Provider defaults.
const (
	DefaultProviderName = "openai"
	DefaultModel        = "gpt-4o-mini"
	DefaultTimeout      = 60 * time.Second
)

// Retry defaults: three attempts, two seconds apart.
const (
	DefaultMaxAttempts = 3
	DefaultInterval    = 2 * time.Second
)

// Rate limiting defaults.
const (
	DefaultTokensPerSecond = 10
	DefaultBurstSize       = 20
)

// Cache and concurrency defaults.
const (
	DefaultCacheTTL    = 24 * time.Hour
	DefaultMaxInFlight = 16
)

// DefaultConfig returns the pipeline configuration used when nothing is overridden.
// The reply cache stays off until a Redis address is supplied.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:        DefaultProviderName,
			Model:       DefaultModel,
			Temperature: 0,
			Timeout:     DefaultTimeout,
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			Interval:    DefaultInterval,
		},
		RateLimit: RateLimitConfig{
			TokensPerSecond: DefaultTokensPerSecond,
			BurstSize:       DefaultBurstSize,
			Enabled:         true,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     DefaultCacheTTL,
		},
		MaxInFlight: DefaultMaxInFlight,
	}
}
