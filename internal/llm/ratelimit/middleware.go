// Package ratelimit throttles model calls before they reach the provider.
//
// Two independent gates are provided: a token bucket that paces the request
// rate, and a weighted semaphore that caps how many calls are in flight at
// once across every grading job in the process. Both block the caller until
// admitted or until the caller's context ends.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// Stats counts limiter activity.
type Stats struct {
	Admitted atomic.Int64
	Delayed  atomic.Int64
	Rejected atomic.Int64
}

// rateLimitMiddleware paces requests with a single process-wide token bucket.
type rateLimitMiddleware struct {
	limiter *rate.Limiter
	cfg     configuration.RateLimitConfig
	stats   *Stats
	logger  *slog.Logger
}

// NewRateLimitMiddleware creates a token bucket middleware from cfg.
// A disabled config yields a nil middleware, which transport.Chain skips.
func NewRateLimitMiddleware(cfg configuration.RateLimitConfig) (transport.Middleware, *Stats, error) {
	stats := &Stats{}
	if !cfg.Enabled {
		return nil, stats, nil
	}
	if err := validate(cfg); err != nil {
		return nil, nil, err
	}

	rlm := &rateLimitMiddleware{
		limiter: rate.NewLimiter(rate.Limit(cfg.TokensPerSecond), cfg.BurstSize),
		cfg:     cfg,
		stats:   stats,
		logger:  slog.Default().With("component", "ratelimit"),
	}
	return rlm.middleware(), stats, nil
}

func validate(cfg configuration.RateLimitConfig) error {
	if cfg.TokensPerSecond <= 0 {
		return fmt.Errorf("%w, got %v", configuration.ErrRateInvalid, cfg.TokensPerSecond)
	}
	if cfg.BurstSize <= 0 {
		return fmt.Errorf("%w, got %d", configuration.ErrBurstInvalid, cfg.BurstSize)
	}
	return nil
}

func (r *rateLimitMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if r.limiter.Allow() {
				r.stats.Admitted.Add(1)
				return next.Handle(ctx, req)
			}

			r.stats.Delayed.Add(1)
			start := time.Now()
			if err := r.limiter.Wait(ctx); err != nil {
				r.stats.Rejected.Add(1)
				return nil, r.rejection(req, err)
			}
			r.stats.Admitted.Add(1)
			r.logger.Debug("request delayed by rate limiter",
				"waited", time.Since(start),
				"provider", req.Provider,
				"trace_id", req.TraceID)

			return next.Handle(ctx, req)
		})
	}
}

// rejection builds a RateLimitError carrying the delay a retry would face.
// The trial reservation is cancelled so no token leaks.
func (r *rateLimitMiddleware) rejection(req *transport.Request, cause error) error {
	reservation := r.limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()

	retryAfter := time.Duration(math.Ceil(delay.Seconds())) * time.Second
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	r.logger.Warn("rate limiter rejected request",
		"retry_after", retryAfter,
		"provider", req.Provider,
		"trace_id", req.TraceID,
		"error", cause)

	return &llmerrors.RateLimitError{
		Provider:   "local",
		Limit:      r.cfg.TokensPerSecond,
		RetryAfter: retryAfter,
		Cause:      cause,
	}
}
