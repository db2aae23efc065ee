package jobs

import (
	"context"
	"log/slog"

	"github.com/ahrav/go-grader/pkg/events"
	"github.com/ahrav/go-grader/pkg/metrics"
)

// Store names used in logs, metrics and events.
const (
	StoreResults  = "results"
	StoreMetadata = "metadata"
	StoreHistory  = "history"
)

// SweepReport lists the ids removed from each store by one sweep.
type SweepReport struct {
	Results  []string `json:"results,omitempty"`
	Metadata []string `json:"metadata,omitempty"`
	History  []string `json:"history,omitempty"`
}

// Total is the number of evicted entries across all stores.
func (r SweepReport) Total() int { return len(r.Results) + len(r.Metadata) + len(r.History) }

// Sweeper applies retention to the job stores. It runs on demand only.
type Sweeper struct {
	stores  Stores
	clock   Clock
	events  events.EventSink
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewSweeper creates a sweeper over stores.
func NewSweeper(stores Stores, clock Clock, sink events.EventSink, m *metrics.Collector, logger *slog.Logger) *Sweeper {
	if sink == nil {
		sink = events.NewNoOpEventSink()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		stores:  stores,
		clock:   clock,
		events:  sink,
		metrics: m,
		logger:  logger.With("component", "sweeper"),
	}
}

// Sweep evicts expired and excess entries from results, metadata and history,
// in that order.
func (s *Sweeper) Sweep(ctx context.Context) SweepReport {
	now := s.clock.Now()
	report := SweepReport{
		Results:  s.stores.Results.Sweep(now),
		Metadata: s.stores.Metadata.Sweep(now),
		History:  s.stores.History.Sweep(now),
	}

	s.metrics.Evicted(StoreResults, len(report.Results))
	s.metrics.Evicted(StoreMetadata, len(report.Metadata))
	s.metrics.Evicted(StoreHistory, len(report.History))

	if report.Total() == 0 {
		s.logger.Debug("sweep found nothing to evict")
		return report
	}

	s.logger.Info("sweep evicted entries",
		"results", len(report.Results),
		"metadata", len(report.Metadata),
		"history", len(report.History))

	e, err := events.NewEnvelope(events.TypeJobsEvicted, "sweeper", "", now, report)
	if err == nil {
		err = s.events.Append(ctx, e)
	}
	if err != nil {
		s.logger.Warn("failed to emit eviction event", "error", err)
	}
	return report
}
