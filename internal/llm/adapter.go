// Package llm provides the model adapter used by the grading evaluator.
//
// An Adapter turns a rendered prompt into the model's raw text reply. Every
// call flows through one middleware pipeline:
//
//	logging -> reply cache -> retry -> in-flight gate -> rate limiter -> provider
//
// Call-level middleware runs once per Invoke. Attempt-level middleware runs
// once per retry attempt, so a call waiting out its retry delay holds no
// in-flight slot.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-grader/internal/llm/cache"
	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/providers"
	"github.com/ahrav/go-grader/internal/llm/ratelimit"
	"github.com/ahrav/go-grader/internal/llm/resilience"
	"github.com/ahrav/go-grader/internal/llm/retry"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// ModelAdapter sends one prompt to the model and returns its raw reply.
// Implementations retry internally and return *errors.ModelCallError once
// every attempt failed.
type ModelAdapter interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Stats exposes the live counters of each pipeline stage.
type Stats struct {
	Retry     *retry.Stats
	RateLimit *ratelimit.Stats
	InFlight  *ratelimit.InFlight
	Cache     *cache.Stats
}

// Adapter is the production ModelAdapter.
type Adapter struct {
	config  *configuration.Config
	handler transport.Handler
	stats   Stats
}

type options struct {
	core    transport.Handler
	metrics resilience.Metrics
	logger  *slog.Logger
	redis   *redis.Client
	observe retry.Observer
}

// Option customizes adapter construction.
type Option func(*options)

// WithCoreHandler replaces the provider handler at the bottom of the pipeline.
func WithCoreHandler(h transport.Handler) Option { return func(o *options) { o.core = h } }

// WithMetrics routes pipeline metrics to m.
func WithMetrics(m resilience.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithRedisClient supplies the client used by the reply cache.
func WithRedisClient(c *redis.Client) Option { return func(o *options) { o.redis = c } }

// WithRetryObserver is notified of every failed attempt that will be retried.
func WithRetryObserver(fn retry.Observer) Option { return func(o *options) { o.observe = fn } }

// NewAdapter validates cfg and assembles the invocation pipeline.
func NewAdapter(ctx context.Context, cfg *configuration.Config, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid llm config: %w", err)
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.core == nil {
		o.core = providers.NewOpenAIHandler(cfg.Provider)
	}

	var stats Stats

	gate, inflight, err := ratelimit.NewConcurrencyMiddleware(cfg.MaxInFlight)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize in-flight gate: %w", err)
	}
	stats.InFlight = inflight

	limiter, rlStats, err := ratelimit.NewRateLimitMiddleware(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	stats.RateLimit = rlStats

	attemptHandler := transport.Chain(o.core, gate, limiter)

	retryOpts := []retry.Option{retry.WithLogger(o.logger)}
	if o.observe != nil {
		retryOpts = append(retryOpts, retry.WithObserver(o.observe))
	}
	retryMiddleware, retryStats, err := retry.NewRetryMiddlewareWithConfig(cfg.Retry, retryOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize retry middleware: %w", err)
	}
	stats.Retry = retryStats

	cacheMiddleware, cacheStats := cache.NewCacheMiddlewareWithRedis(ctx, cfg.Cache, o.redis)
	stats.Cache = cacheStats

	handler := transport.Chain(retryMiddleware(attemptHandler),
		resilience.NewLoggingMiddleware(cfg.Observability, o.logger, o.metrics),
		cacheMiddleware,
	)

	return &Adapter{
		config:  cfg,
		handler: handler,
		stats:   stats,
	}, nil
}

// Invoke implements ModelAdapter.
func (a *Adapter) Invoke(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", llmerrors.ErrEmptyPrompt
	}

	req := &transport.Request{
		Provider:    a.config.Provider.Name,
		Model:       a.config.Provider.Model,
		Prompt:      prompt,
		Temperature: a.config.Provider.Temperature,
		Timeout:     a.config.Provider.Timeout,
	}

	resp, err := a.handler.Handle(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Stats returns the live pipeline counters.
func (a *Adapter) Stats() Stats { return a.stats }

var _ ModelAdapter = (*Adapter)(nil)
