// Package resilience provides the observability layer of the model invocation
// pipeline: structured request logging and metric emission around every
// logical model call.
package resilience

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// ContentTruncationLimit caps how much of a prompt or reply is logged.
const ContentTruncationLimit = 200

// Metric names emitted by the logging middleware.
const (
	MetricRequestsTotal   = "llm.requests.total"
	MetricRequestsSuccess = "llm.requests.success"
	MetricRequestsErrors  = "llm.requests.errors"
	MetricDurationMs      = "llm.request.duration_ms"
	MetricCacheHits       = "llm.cache.hits"
)

// Metrics collects observability data from model calls.
type Metrics interface {
	IncrementCounter(name string, tags map[string]string, value float64)
	RecordHistogram(name string, tags map[string]string, value float64)
	SetGauge(name string, tags map[string]string, value float64)
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

// NewNoOpMetrics returns a new no-op metrics collector.
func NewNoOpMetrics() *NoOpMetrics { return &NoOpMetrics{} }

func (n *NoOpMetrics) IncrementCounter(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) RecordHistogram(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) SetGauge(_ string, _ map[string]string, _ float64) {}

// LoggingMiddleware logs the lifecycle of each model call and records
// counters and latency through Metrics.
type LoggingMiddleware struct {
	logger  *slog.Logger
	metrics Metrics
	config  configuration.ObservabilityConfig
}

// NewLoggingMiddleware creates the observability middleware.
// Prompts and replies are logged only by length unless enabled in config.
func NewLoggingMiddleware(config configuration.ObservabilityConfig, logger *slog.Logger, metrics Metrics) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}

	lm := &LoggingMiddleware{
		logger:  logger.With("component", "llm"),
		metrics: metrics,
		config:  config,
	}
	return lm.Middleware()
}

// Middleware returns the transport.Middleware for this instance.
func (m *LoggingMiddleware) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if req.TraceID == "" {
				req.TraceID = uuid.NewString()
			}

			baseTags := map[string]string{
				"provider": req.Provider,
				"model":    req.Model,
			}

			m.logRequest(req)
			m.metrics.IncrementCounter(MetricRequestsTotal, baseTags, 1)

			start := time.Now()
			resp, err := next.Handle(ctx, req)
			duration := time.Since(start)

			m.metrics.RecordHistogram(MetricDurationMs, baseTags, float64(duration.Milliseconds()))

			if err != nil {
				m.handleError(req, err, duration, baseTags)
			} else if resp != nil {
				m.handleSuccess(req, resp, duration, baseTags)
			}
			return resp, err
		})
	}
}

func (m *LoggingMiddleware) logRequest(req *transport.Request) {
	fields := []any{
		"trace_id", req.TraceID,
		"provider", req.Provider,
		"model", req.Model,
		"temperature", req.Temperature,
	}
	if m.config.LogPrompts {
		fields = append(fields, "prompt", truncate(req.Prompt))
	} else {
		fields = append(fields, "prompt_length", len(req.Prompt))
	}
	m.logger.Debug("model request started", fields...)
}

func (m *LoggingMiddleware) handleError(req *transport.Request, err error, duration time.Duration, baseTags map[string]string) {
	errorType := string(llmerrors.ErrorTypeUnknown)
	if ce := llmerrors.ClassifyLLMError(err); ce != nil {
		errorType = string(ce.Type)
	}

	errorTags := maps.Clone(baseTags)
	errorTags["error_type"] = errorType
	m.metrics.IncrementCounter(MetricRequestsErrors, errorTags, 1)

	m.logger.Error("model request failed",
		"trace_id", req.TraceID,
		"provider", req.Provider,
		"model", req.Model,
		"duration_ms", duration.Milliseconds(),
		"error_type", errorType,
		"error", err)
}

func (m *LoggingMiddleware) handleSuccess(req *transport.Request, resp *transport.Response, duration time.Duration, baseTags map[string]string) {
	m.metrics.IncrementCounter(MetricRequestsSuccess, baseTags, 1)
	if resp.CacheHit {
		m.metrics.IncrementCounter(MetricCacheHits, baseTags, 1)
	}

	fields := []any{
		"trace_id", req.TraceID,
		"provider", req.Provider,
		"model", req.Model,
		"duration_ms", duration.Milliseconds(),
		"cache_hit", resp.CacheHit,
	}
	if m.config.LogResponses {
		fields = append(fields, "response_preview", truncate(resp.Content))
	} else {
		fields = append(fields, "response_length", len(resp.Content))
	}
	m.logger.Info("model request completed", fields...)
}

func truncate(s string) string {
	if len(s) > ContentTruncationLimit {
		return s[:ContentTruncationLimit] + "..."
	}
	return s
}
