package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/ratelimit"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

var okHandler = transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
	return &transport.Response{Content: "ok"}, nil
})

// TestNewRateLimitMiddleware_Config covers disabled and invalid configurations.
func TestNewRateLimitMiddleware_Config(t *testing.T) {
	mw, stats, err := ratelimit.NewRateLimitMiddleware(configuration.RateLimitConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, mw)
	assert.NotNil(t, stats)

	_, _, err = ratelimit.NewRateLimitMiddleware(configuration.RateLimitConfig{Enabled: true, BurstSize: 1})
	require.ErrorIs(t, err, configuration.ErrRateInvalid)

	_, _, err = ratelimit.NewRateLimitMiddleware(configuration.RateLimitConfig{Enabled: true, TokensPerSecond: 1})
	require.ErrorIs(t, err, configuration.ErrBurstInvalid)
}

// TestRateLimitMiddleware_BurstThenReject admits the burst and rejects calls
// whose deadline expires before a token refills.
func TestRateLimitMiddleware_BurstThenReject(t *testing.T) {
	mw, stats, err := ratelimit.NewRateLimitMiddleware(configuration.RateLimitConfig{
		Enabled:         true,
		TokensPerSecond: 0.001,
		BurstSize:       2,
	})
	require.NoError(t, err)
	h := mw(okHandler)

	for range 2 {
		resp, err := h.Handle(context.Background(), &transport.Request{})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Content)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.Handle(ctx, &transport.Request{})
	require.Error(t, err)

	var rle *llmerrors.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "local", rle.Provider)
	assert.GreaterOrEqual(t, rle.RetryAfter, time.Second)
	assert.ErrorIs(t, err, llmerrors.ErrRateLimitExceeded)

	assert.Equal(t, int64(2), stats.Admitted.Load())
	assert.Equal(t, int64(1), stats.Delayed.Load())
	assert.Equal(t, int64(1), stats.Rejected.Load())
}

// TestRateLimitMiddleware_WaitsForToken blocks instead of failing when a
// token arrives before the deadline.
func TestRateLimitMiddleware_WaitsForToken(t *testing.T) {
	mw, stats, err := ratelimit.NewRateLimitMiddleware(configuration.RateLimitConfig{
		Enabled:         true,
		TokensPerSecond: 50,
		BurstSize:       1,
	})
	require.NoError(t, err)
	h := mw(okHandler)

	for range 3 {
		_, err := h.Handle(context.Background(), &transport.Request{})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), stats.Admitted.Load())
	assert.Zero(t, stats.Rejected.Load())
	assert.Positive(t, stats.Delayed.Load())
}

// TestConcurrencyMiddleware_CapsInFlight never lets more than the configured
// number of calls run at once.
func TestConcurrencyMiddleware_CapsInFlight(t *testing.T) {
	const limit = 2

	mw, gauge, err := ratelimit.NewConcurrencyMiddleware(limit)
	require.NoError(t, err)

	release := make(chan struct{})
	entered := make(chan struct{}, 10)
	slow := transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		entered <- struct{}{}
		<-release
		return &transport.Response{}, nil
	})
	h := mw(slow)

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Handle(context.Background(), &transport.Request{})
			assert.NoError(t, err)
		}()
	}

	for range limit {
		<-entered
	}
	assert.Equal(t, int64(limit), gauge.Current.Load())

	close(release)
	wg.Wait()

	assert.Zero(t, gauge.Current.Load())
	assert.Equal(t, int64(limit), gauge.Peak.Load())
}

// TestConcurrencyMiddleware_Config covers the disabled and invalid bounds and
// a cancelled wait.
func TestConcurrencyMiddleware_Config(t *testing.T) {
	mw, _, err := ratelimit.NewConcurrencyMiddleware(0)
	require.NoError(t, err)
	assert.Nil(t, mw)

	_, _, err = ratelimit.NewConcurrencyMiddleware(-1)
	require.ErrorIs(t, err, configuration.ErrMaxInFlightInvalid)

	mw, _, err = ratelimit.NewConcurrencyMiddleware(1)
	require.NoError(t, err)

	block := make(chan struct{})
	started := make(chan struct{})
	holder := mw(transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		close(started)
		<-block
		return &transport.Response{}, nil
	}))
	go func() { _, _ = holder.Handle(context.Background(), &transport.Request{}) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = mw(okHandler).Handle(ctx, &transport.Request{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}
