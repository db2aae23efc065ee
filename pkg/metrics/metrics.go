// Package metrics exposes grading service metrics through Prometheus.
//
// A Collector owns its own registry so tests can build as many as they need.
// All methods are safe on a nil *Collector and do nothing.
package metrics

import (
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grader"

// Labels
const (
	kindLabel   = "kind"
	statusLabel = "status"
	storeLabel  = "store"
	resultLabel = "result"
)

// Collector records job, evaluation and model call metrics.
type Collector struct {
	reg *prometheus.Registry

	jobsSubmitted *prometheus.CounterVec
	jobsRejected  prometheus.Counter
	jobsSettled   *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	activeJobs    prometheus.Gauge
	evictions     *prometheus.CounterVec
	corrections   *prometheus.CounterVec

	mu      sync.Mutex
	dynamic map[string]prometheus.Collector
	logger  *slog.Logger
}

// New creates a collector with Go runtime and process collectors registered.
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Grading jobs admitted, partitioned by kind.",
		}, []string{kindLabel}),
		jobsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Grading jobs refused by admission control.",
		}),
		jobsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_settled_total",
			Help:      "Grading jobs that reached a terminal status.",
		}, []string{kindLabel, statusLabel}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from admission to settle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{kindLabel}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Grading jobs currently running.",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_evictions_total",
			Help:      "Entries removed by the sweeper, partitioned by store.",
		}, []string{storeLabel}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Corrections produced, partitioned by question kind and whether they were degraded.",
		}, []string{kindLabel, resultLabel}),
		dynamic: make(map[string]prometheus.Collector),
		logger:  slog.Default().With("component", "metrics"),
	}

	c.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.jobsSubmitted,
		c.jobsRejected,
		c.jobsSettled,
		c.jobDuration,
		c.activeJobs,
		c.evictions,
		c.corrections,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// JobSubmitted counts an admitted job.
func (c *Collector) JobSubmitted(kind string) {
	if c == nil {
		return
	}
	c.jobsSubmitted.WithLabelValues(kind).Inc()
}

// JobRejected counts a job refused at admission.
func (c *Collector) JobRejected() {
	if c == nil {
		return
	}
	c.jobsRejected.Inc()
}

// JobSettled records a terminal job and how long it ran.
func (c *Collector) JobSettled(kind, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.jobsSettled.WithLabelValues(kind, status).Inc()
	c.jobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// SetActiveJobs reports the size of the active set.
func (c *Collector) SetActiveJobs(n int) {
	if c == nil {
		return
	}
	c.activeJobs.Set(float64(n))
}

// Evicted counts entries a sweep removed from store.
func (c *Collector) Evicted(store string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.evictions.WithLabelValues(store).Add(float64(n))
}

// CorrectionRecorded counts one graded answer.
func (c *Collector) CorrectionRecorded(kind string, degraded bool) {
	if c == nil {
		return
	}
	result := "ok"
	if degraded {
		result = "degraded"
	}
	c.corrections.WithLabelValues(kind, result).Inc()
}

// IncrementCounter records a counter by dotted name, e.g. "llm.requests.total".
// The first call for a name fixes its label set; later calls with different
// label keys are dropped.
func (c *Collector) IncrementCounter(name string, tags map[string]string, value float64) {
	if c == nil {
		return
	}
	vec, ok := c.vec(name, tags, func(opts prometheus.Opts, keys []string) prometheus.Collector {
		return prometheus.NewCounterVec(prometheus.CounterOpts(opts), keys)
	}).(*prometheus.CounterVec)
	if !ok {
		return
	}
	if m, err := vec.GetMetricWith(tags); err == nil {
		m.Add(value)
	}
}

// RecordHistogram observes value under a dotted name.
func (c *Collector) RecordHistogram(name string, tags map[string]string, value float64) {
	if c == nil {
		return
	}
	vec, ok := c.vec(name, tags, func(opts prometheus.Opts, keys []string) prometheus.Collector {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      opts.Name,
			Help:      opts.Help,
			Buckets:   []float64{100, 300, 500, 1000, 5000, 15000, 60000},
		}, keys)
	}).(*prometheus.HistogramVec)
	if !ok {
		return
	}
	if m, err := vec.GetMetricWith(tags); err == nil {
		m.Observe(value)
	}
}

// SetGauge sets a gauge under a dotted name.
func (c *Collector) SetGauge(name string, tags map[string]string, value float64) {
	if c == nil {
		return
	}
	vec, ok := c.vec(name, tags, func(opts prometheus.Opts, keys []string) prometheus.Collector {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts(opts), keys)
	}).(*prometheus.GaugeVec)
	if !ok {
		return
	}
	if m, err := vec.GetMetricWith(tags); err == nil {
		m.Set(value)
	}
}

func (c *Collector) vec(
	name string,
	tags map[string]string,
	build func(prometheus.Opts, []string) prometheus.Collector,
) prometheus.Collector {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.dynamic[name]; ok {
		return existing
	}

	promName := strings.NewReplacer(".", "_", "-", "_").Replace(name)
	coll := build(prometheus.Opts{
		Namespace: namespace,
		Name:      promName,
		Help:      "Model call metric " + name + ".",
	}, slices.Sorted(maps.Keys(tags)))

	if err := c.reg.Register(coll); err != nil {
		c.logger.Warn("metric registration failed", "name", name, "error", err)
		return nil
	}
	c.dynamic[name] = coll
	return coll
}
