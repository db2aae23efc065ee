// Package events provides the envelope and sink used to publish grading job
// lifecycle events. Emission is best-effort: sink failures are logged by the
// caller and never affect job outcomes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the job manager.
const (
	TypeJobSubmitted = "grading.job_submitted"
	TypeJobRejected  = "grading.job_rejected"
	TypeJobCompleted = "grading.job_completed"
	TypeJobFailed    = "grading.job_failed"
	TypeJobDiscarded = "grading.job_discarded"
	TypeJobsReset    = "grading.jobs_reset"
	TypeJobsEvicted  = "grading.jobs_evicted"
)

// Version is the payload schema version of every event in this package.
const Version = "1.0.0"

// Envelope wraps an event payload with routing and correlation metadata.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event, e.g. "grading.job_completed".
	Type string `json:"type"`

	// Source names the emitting component.
	Source string `json:"source"`

	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	// JobID correlates the event with a grading job. Empty for events that
	// cover several jobs.
	JobID string `json:"job_id,omitempty"`

	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh envelope.
func NewEnvelope(eventType, source, jobID string, at time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Version:   Version,
		Timestamp: at,
		JobID:     jobID,
		Payload:   raw,
	}, nil
}

// EventSink receives emitted events.
//
// Append should return quickly. Callers do not fail their primary operation
// when it returns an error.
type EventSink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every event.
type NoOpEventSink struct{}

// Append implements EventSink.
func (NoOpEventSink) Append(context.Context, Envelope) error { return nil }

// NewNoOpEventSink creates a sink that discards events.
func NewNoOpEventSink() EventSink { return NoOpEventSink{} }

// LogSink writes each event as one structured log record.
type LogSink struct{ logger *slog.Logger }

// NewLogSink logs events through logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "events")}
}

// Append implements EventSink.
func (s *LogSink) Append(ctx context.Context, e Envelope) error {
	s.logger.InfoContext(ctx, "event",
		"event_id", e.ID,
		"type", e.Type,
		"source", e.Source,
		"job_id", e.JobID,
		"payload", string(e.Payload))
	return nil
}
