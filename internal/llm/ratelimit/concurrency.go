package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/ahrav/go-grader/internal/llm/configuration"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// InFlight reports the current and peak number of admitted calls.
type InFlight struct {
	Current atomic.Int64
	Peak    atomic.Int64
}

func (f *InFlight) enter() {
	n := f.Current.Add(1)
	for {
		peak := f.Peak.Load()
		if n <= peak || f.Peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (f *InFlight) leave() { f.Current.Add(-1) }

// NewConcurrencyMiddleware caps concurrent downstream calls at maxInFlight.
// Zero disables the gate and yields a nil middleware.
func NewConcurrencyMiddleware(maxInFlight int) (transport.Middleware, *InFlight, error) {
	gauge := &InFlight{}
	if maxInFlight < 0 {
		return nil, nil, fmt.Errorf("%w, got %d", configuration.ErrMaxInFlightInvalid, maxInFlight)
	}
	if maxInFlight == 0 {
		return nil, gauge, nil
	}

	sem := semaphore.NewWeighted(int64(maxInFlight))
	logger := slog.Default().With("component", "inflight")

	mw := func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if !sem.TryAcquire(1) {
				logger.Debug("waiting for in-flight slot",
					"max_in_flight", maxInFlight,
					"trace_id", req.TraceID)
				if err := sem.Acquire(ctx, 1); err != nil {
					return nil, fmt.Errorf("waiting for model call slot: %w", err)
				}
			}
			defer sem.Release(1)

			gauge.enter()
			defer gauge.leave()

			return next.Handle(ctx, req)
		})
	}
	return mw, gauge, nil
}
