package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-grader/internal/llm/resilience"
	"github.com/ahrav/go-grader/pkg/metrics"
)

var _ resilience.Metrics = (*metrics.Collector)(nil)

// TestCollector_JobMetrics exposes job counters through the handler.
func TestCollector_JobMetrics(t *testing.T) {
	c := metrics.New()
	c.JobSubmitted("batch")
	c.JobSubmitted("student")
	c.JobRejected()
	c.JobSettled("batch", "completed", 3*time.Second)
	c.SetActiveJobs(4)
	c.Evicted("results", 2)
	c.Evicted("results", 0)
	c.CorrectionRecorded("calculation", true)

	body := scrape(t, c.Handler())
	assert.Contains(t, body, `grader_jobs_submitted_total{kind="batch"} 1`)
	assert.Contains(t, body, `grader_jobs_rejected_total 1`)
	assert.Contains(t, body, `grader_jobs_settled_total{kind="batch",status="completed"} 1`)
	assert.Contains(t, body, `grader_jobs_active 4`)
	assert.Contains(t, body, `grader_store_evictions_total{store="results"} 2`)
	assert.Contains(t, body, `grader_corrections_total{kind="calculation",result="degraded"} 1`)
}

// TestCollector_DynamicMetrics maps dotted names onto lazily registered vectors.
func TestCollector_DynamicMetrics(t *testing.T) {
	c := metrics.New()
	tags := map[string]string{"provider": "openai", "model": "m"}

	c.IncrementCounter(resilience.MetricRequestsTotal, tags, 1)
	c.IncrementCounter(resilience.MetricRequestsTotal, tags, 2)
	c.IncrementCounter(resilience.MetricRequestsTotal, map[string]string{"other": "x"}, 1)
	c.RecordHistogram(resilience.MetricDurationMs, tags, 120)
	c.SetGauge("llm.in_flight", nil, 3)

	body := scrape(t, c.Handler())
	assert.Contains(t, body, `grader_llm_requests_total{model="m",provider="openai"} 3`)
	assert.Contains(t, body, `grader_llm_request_duration_ms_count{model="m",provider="openai"} 1`)
	assert.Contains(t, body, `grader_llm_in_flight 3`)
}

// TestCollector_NilSafe allows a nil collector everywhere.
func TestCollector_NilSafe(t *testing.T) {
	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.JobSubmitted("student")
		c.JobRejected()
		c.JobSettled("student", "error", time.Second)
		c.SetActiveJobs(1)
		c.Evicted("history", 1)
		c.CorrectionRecorded("proof", false)
		c.IncrementCounter("x", nil, 1)
		c.RecordHistogram("y", nil, 1)
		c.SetGauge("z", nil, 1)
	})
}

// TestMiddleware counts requests by route pattern.
func TestMiddleware(t *testing.T) {
	c := metrics.New()
	mw := metrics.NewMiddleware(c)

	r := chi.NewRouter()
	r.Use(mw.Handler)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	for range 2 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	n, err := testutil.GatherAndCount(c.Registry(), "grader_"+metrics.RequestsCollectorName)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, scrape(t, c.Handler()), `grader_http_requests_total{code="418",method="GET",path="/items/{id}"} 2`)
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return strings.TrimSpace(string(body))
}
