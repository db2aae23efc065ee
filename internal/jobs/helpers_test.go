package jobs_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-grader/internal/catalog"
	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/jobs"
	"github.com/ahrav/go-grader/pkg/events"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeScheduler records scheduled funcs and runs them on demand.
type fakeScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	funcs  []func()
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	s.funcs = append(s.funcs, f)
	return func() bool { return false }
}

// RunAll executes and forgets every scheduled func.
func (s *fakeScheduler) RunAll() int {
	s.mu.Lock()
	funcs := s.funcs
	s.funcs = nil
	s.mu.Unlock()
	for _, f := range funcs {
		f()
	}
	return len(funcs)
}

func (s *fakeScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// fakeEvaluator scores every answer by its content length. When gate is set,
// each evaluation waits for one value from it.
type fakeEvaluator struct {
	gate    chan struct{}
	panicOn string
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, unit domain.AnswerUnit, _ string, maxScore float64) domain.Correction {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
		}
	}
	if unit.QID == f.panicOn {
		panic("evaluator exploded")
	}
	c := domain.Correction{
		QID:        unit.QID,
		Type:       unit.Type,
		Score:      float64(len(unit.Text)),
		MaxScore:   maxScore,
		Confidence: 0.9,
		Comment:    "graded " + unit.Text,
	}
	c.Normalize()
	return c
}

// capturingSink records emitted events.
type capturingSink struct {
	mu     sync.Mutex
	events []events.Envelope
}

func (c *capturingSink) Append(_ context.Context, e events.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturingSink) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	manager   *jobs.Manager
	catalog   *catalog.Store
	clock     *fakeClock
	scheduler *fakeScheduler
	evaluator *fakeEvaluator
	sink      *capturingSink
}

func newFixture(t *testing.T, cfg jobs.Config) *fixture {
	t.Helper()
	f := &fixture{
		catalog:   catalog.NewStore(),
		clock:     newFakeClock(),
		scheduler: &fakeScheduler{},
		evaluator: &fakeEvaluator{},
		sink:      &capturingSink{},
	}
	require.NoError(t, f.catalog.ReplaceProblems(catalog.Problems{
		"q1": {QID: "q1", Type: domain.LabelConcept, Stem: "Define entropy", Criterion: "mentions disorder"},
		"q2": {QID: "q2", Type: domain.LabelCalculation, Stem: "2+2", Criterion: "4"},
	}))
	require.NoError(t, f.catalog.ReplaceStudents(catalog.Students{
		"s1": {ID: "s1", Name: "Ann", Answers: []domain.StudentAnswer{
			{QID: "q1", Type: domain.LabelConcept, Content: "disorder"},
			{QID: "q2", Type: domain.LabelCalculation, Content: "4"},
			{QID: "q9", Type: domain.LabelProof, Content: "???"},
		}},
		"s2":   {ID: "s2", Answers: []domain.StudentAnswer{{QID: "q2", Content: "five"}}},
		"anon": {Name: "no id"},
	}))

	m, err := jobs.NewManager(f.evaluator, f.catalog, f.catalog,
		jobs.WithConfig(cfg),
		jobs.WithClock(f.clock),
		jobs.WithScheduler(f.scheduler),
		jobs.WithEventSink(f.sink),
	)
	require.NoError(t, err)
	f.manager = m
	return f
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.manager.Drain(ctx))
}

func (f *fixture) submit(t *testing.T, kind domain.JobKind, studentID string) string {
	t.Helper()
	res, err := f.manager.Submit(context.Background(), kind, studentID)
	require.NoError(t, err)
	require.False(t, res.Rejected, res.Message)
	require.NotEmpty(t, res.JobID)
	return res.JobID
}
