// Package retry provides the bounded, fixed-delay retry middleware of the
// model invocation pipeline.
//
// Every failure is retried, including ones that look permanent, until
// MaxAttempts is reached. Only the caller's own context cancellation
// short-circuits the loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

var (
	// Runtime errors.
	errContextCancelledBeforeRetry = errors.New("context cancelled before retry")
	errContextCancelledDuringRetry = errors.New("context cancelled during retry")
)

// Observer is notified after every failed attempt that will be retried.
type Observer func(req *transport.Request, attempt int, err error)

// Option customizes the retry middleware.
type Option func(*retryMiddleware)

// WithObserver registers a callback invoked before each retry delay.
func WithObserver(o Observer) Option {
	return func(r *retryMiddleware) { r.observer = o }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *retryMiddleware) { r.logger = l.With("component", "retry") }
}

// retryMiddleware retries failed calls a bounded number of times with a
// fixed delay between attempts.
type retryMiddleware struct {
	config   configuration.RetryConfig
	logger   *slog.Logger
	observer Observer
	stats    *Stats
}

// Stats holds counters of retry activity for one middleware instance.
type Stats struct {
	Attempts          atomic.Int64
	SuccessAfterRetry atomic.Int64
	Exhausted         atomic.Int64
}

// NewRetryMiddlewareWithConfig creates retry middleware with the given policy.
// The returned Stats are updated live by the middleware.
func NewRetryMiddlewareWithConfig(cfg configuration.RetryConfig, opts ...Option) (transport.Middleware, *Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	rm := &retryMiddleware{
		config: cfg,
		logger: slog.Default().With("component", "retry"),
		stats:  &Stats{},
	}
	for _, opt := range opts {
		opt(rm)
	}

	return rm.middleware(), rm.stats, nil
}

func (r *retryMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			// Fail fast if context is already cancelled to avoid wasted attempts.
			select {
			case <-ctx.Done():
				return nil, &llmerrors.ModelCallError{
					Attempts: 0,
					Last:     fmt.Errorf("%w: %w", errContextCancelledBeforeRetry, ctx.Err()),
				}
			default:
			}

			var lastErr error
			maxAttempts := r.config.MaxAttempts

			for attempt := 1; attempt <= maxAttempts; attempt++ {
				resp, err := next.Handle(ctx, req)
				r.stats.Attempts.Add(1)

				if err == nil {
					if attempt > 1 {
						r.stats.SuccessAfterRetry.Add(1)
						r.logger.Info("request succeeded after retry",
							"attempt", attempt,
							"provider", req.Provider,
							"model", req.Model,
							"trace_id", req.TraceID)
					}
					return resp, nil
				}

				lastErr = err
				if attempt == maxAttempts {
					break
				}

				if r.observer != nil {
					r.observer(req, attempt, err)
				}
				r.logger.Warn("model call attempt failed",
					"attempt", attempt,
					"max_attempts", maxAttempts,
					"delay", r.config.Interval,
					"error", err,
					"provider", req.Provider,
					"trace_id", req.TraceID)

				// Wait with context cancellation to enable graceful shutdown.
				select {
				case <-time.After(r.config.Interval):
				case <-ctx.Done():
					r.stats.Exhausted.Add(1)
					return nil, &llmerrors.ModelCallError{
						Attempts: attempt,
						Last:     errors.Join(lastErr, fmt.Errorf("%w: %w", errContextCancelledDuringRetry, ctx.Err())),
					}
				}
			}

			r.stats.Exhausted.Add(1)
			r.logger.Error("model call failed after all attempts",
				"attempts", maxAttempts,
				"error", lastErr,
				"provider", req.Provider,
				"trace_id", req.TraceID)
			return nil, &llmerrors.ModelCallError{Attempts: maxAttempts, Last: lastErr}
		})
	}
}
