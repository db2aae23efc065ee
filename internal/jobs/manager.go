// Package jobs runs grading jobs in the background and tracks their results.
//
// A Manager admits at most Config.MaxActiveJobs running jobs. Each job grades
// a snapshot of the catalog taken at admission, fans out one evaluation per
// answer, and settles exactly once. Results live in three in-memory stores
// with independent retention: active results, job metadata, and history.
// History survives ResetAll and Discard.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-grader/internal/catalog"
	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/pkg/events"
	"github.com/ahrav/go-grader/pkg/metrics"
)

// Messages returned to callers for normal, non-error outcomes.
const (
	RejectedMessage         = "Too many concurrent grading jobs. Please try again later."
	NotFoundMessage         = "Job ID not found in results or history."
	HistoryNotFoundMessage  = "Job ID not found in history."
	MetadataNotFoundMessage = "Job ID not found in metadata."
	ResetMessage            = "All grading results have been reset (history preserved)."
)

var (
	// ErrStudentIDRequired indicates a single-student submission without an id.
	ErrStudentIDRequired = errors.New("student_id is required")
	// ErrUnknownJobKind indicates a submission with an unsupported kind.
	ErrUnknownJobKind = errors.New("unknown job kind")
)

// Evaluator grades one answer unit. It must not panic out or block forever.
type Evaluator interface {
	Evaluate(ctx context.Context, unit domain.AnswerUnit, rubric string, maxScore float64) domain.Correction
}

// SubmitResult is the outcome of admission.
type SubmitResult struct {
	JobID    string `json:"job_id,omitempty"`
	Rejected bool   `json:"-"`
	Message  string `json:"message,omitempty"`
}

// Manager owns the job lifecycle.
type Manager struct {
	cfg       Config
	stores    Stores
	clock     Clock
	scheduler Scheduler
	evaluator Evaluator
	problems  catalog.ProblemSource
	students  catalog.StudentSource
	events    events.EventSink
	metrics   *metrics.Collector
	logger    *slog.Logger
	sweeper   *Sweeper

	// baseCtx outlives any request; jobs run on it.
	baseCtx context.Context

	mu     sync.Mutex
	active map[string]struct{}

	wg sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option { return func(m *Manager) { m.cfg = cfg } }

// WithStores replaces the in-memory stores.
func WithStores(s Stores) Option { return func(m *Manager) { m.stores = s } }

// WithClock sets the time source.
func WithClock(c Clock) Option { return func(m *Manager) { m.clock = c } }

// WithScheduler sets how post-settle sweeps are scheduled.
func WithScheduler(s Scheduler) Option { return func(m *Manager) { m.scheduler = s } }

// WithEventSink receives job lifecycle events.
func WithEventSink(s events.EventSink) Option { return func(m *Manager) { m.events = s } }

// WithMetrics records job metrics.
func WithMetrics(c *metrics.Collector) Option { return func(m *Manager) { m.metrics = c } }

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithBaseContext sets the context jobs run on. Cancelling it cancels
// in-flight model calls; use it for process shutdown only.
func WithBaseContext(ctx context.Context) Option { return func(m *Manager) { m.baseCtx = ctx } }

// NewManager creates a manager. Stores default to in-memory stores built from
// the configured retention.
func NewManager(
	evaluator Evaluator,
	problems catalog.ProblemSource,
	students catalog.StudentSource,
	opts ...Option,
) (*Manager, error) {
	m := &Manager{
		cfg:       DefaultConfig(),
		clock:     SystemClock{},
		scheduler: TimerScheduler{},
		evaluator: evaluator,
		problems:  problems,
		students:  students,
		events:    events.NewNoOpEventSink(),
		logger:    slog.Default(),
		baseCtx:   context.Background(),
		active:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid jobs config: %w", err)
	}
	if evaluator == nil || problems == nil || students == nil {
		return nil, errors.New("evaluator, problem source and student source are required")
	}
	if m.stores.Results == nil || m.stores.Metadata == nil || m.stores.History == nil {
		m.stores = NewStores(m.cfg)
	}
	base := m.logger
	m.logger = base.With("component", "jobs")
	m.sweeper = NewSweeper(m.stores, m.clock, m.events, m.metrics, base)
	return m, nil
}

// Submit admits a job or rejects it when the active set is full. Admission
// and registration are one atomic step. The job runs detached from ctx.
func (m *Manager) Submit(ctx context.Context, kind domain.JobKind, studentID string) (SubmitResult, error) {
	switch kind {
	case domain.JobKindStudent:
		if studentID == "" {
			return SubmitResult{}, ErrStudentIDRequired
		}
	case domain.JobKindBatch:
		studentID = ""
	default:
		return SubmitResult{}, fmt.Errorf("%w: %q", ErrUnknownJobKind, kind)
	}

	m.mu.Lock()
	if len(m.active) >= m.cfg.MaxActiveJobs {
		m.mu.Unlock()
		m.metrics.JobRejected()
		m.emit(ctx, events.TypeJobRejected, "", map[string]string{"kind": string(kind)})
		m.logger.Warn("job rejected", "kind", kind, "active_limit", m.cfg.MaxActiveJobs)
		return SubmitResult{Rejected: true, Message: RejectedMessage}, nil
	}

	id := uuid.NewString()
	job := domain.NewJob(id, kind, studentID, m.clock.Now())
	m.stores.Results.Put(id, job)
	m.stores.Metadata.Put(id, domain.NewJobMetadata(job))
	m.active[id] = struct{}{}
	active := len(m.active)
	m.wg.Add(1)
	m.mu.Unlock()

	problems := m.problems.Problems()
	students := m.students.Students()

	m.metrics.JobSubmitted(string(kind))
	m.metrics.SetActiveJobs(active)
	m.emit(ctx, events.TypeJobSubmitted, id, map[string]string{"kind": string(kind), "student_id": studentID})
	m.logger.Info("job submitted", "job_id", id, "kind", kind, "student_id", studentID)

	go m.run(job, problems, students)

	return SubmitResult{JobID: id}, nil
}

func (m *Manager) run(job domain.Job, problems catalog.Problems, students catalog.Students) {
	defer m.wg.Done()
	ctx := m.baseCtx

	// settling is set once a terminal transition starts; a panic after that
	// only frees the slot so the job never settles twice.
	var settling bool
	finish := func(apply func(*domain.Job, time.Time) error) {
		settling = true
		m.settle(ctx, job, apply)
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("job panicked", "job_id", job.ID, "panic", r, "settling", settling)
			if settling {
				m.metrics.SetActiveJobs(m.release(job.ID))
				return
			}
			m.settle(ctx, job, func(j *domain.Job, now time.Time) error {
				return j.Fail(fmt.Sprintf("Grading failed: %v", r), now)
			})
		}
	}()

	switch job.Kind {
	case domain.JobKindBatch:
		results := m.gradeBatch(ctx, students, problems)
		finish(func(j *domain.Job, now time.Time) error {
			return j.CompleteBatch(results, now)
		})
	default:
		student, ok := students.Student(job.StudentID)
		if !ok {
			msg := fmt.Sprintf("Student %s not found", job.StudentID)
			finish(func(j *domain.Job, now time.Time) error { return j.Fail(msg, now) })
			return
		}
		corrections := m.gradeStudent(ctx, student, problems)
		finish(func(j *domain.Job, now time.Time) error {
			return j.CompleteStudent(student.DisplayName(), corrections, now)
		})
	}
}

// gradeBatch grades every student with an id concurrently. Students without
// an id are skipped.
func (m *Manager) gradeBatch(ctx context.Context, students catalog.Students, problems catalog.Problems) []domain.StudentResult {
	var graded []domain.Student
	for _, st := range students.Ordered() {
		if st.ID == "" {
			m.logger.Warn("skipping student without id", "student_name", st.Name)
			continue
		}
		graded = append(graded, st)
	}

	results := make([]domain.StudentResult, len(graded))
	var g errgroup.Group
	for i, st := range graded {
		g.Go(func() error {
			results[i] = domain.StudentResult{StudentID: st.ID, StudentName: st.DisplayName()}
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("student grading panicked", "student_id", st.ID, "panic", r)
					results[i].Corrections = []domain.Correction{processingError("", "", r)}
				}
			}()
			results[i].Corrections = m.gradeStudent(ctx, st, problems)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// gradeStudent grades every answer concurrently and returns corrections in
// answer order. Members always return nil so one failure never cancels
// its siblings.
func (m *Manager) gradeStudent(ctx context.Context, st domain.Student, problems catalog.Problems) []domain.Correction {
	corrections := make([]domain.Correction, len(st.Answers))

	var g errgroup.Group
	for i, ans := range st.Answers {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("answer grading panicked", "q_id", ans.QID, "student_id", st.ID, "panic", r)
					corrections[i] = processingError(ans.QID, ans.Type, r)
				}
			}()
			corrections[i] = m.gradeAnswer(ctx, ans, problems)
			return nil
		})
	}
	_ = g.Wait()
	return corrections
}

func (m *Manager) gradeAnswer(ctx context.Context, ans domain.StudentAnswer, problems catalog.Problems) domain.Correction {
	p, ok := problems.Problem(ans.QID)
	if !ok {
		m.logger.Warn("problem not found", "q_id", ans.QID)
		label := ans.Type
		if label == "" {
			label = domain.LabelConcept
		}
		c := domain.Correction{
			QID:      ans.QID,
			Type:     label,
			MaxScore: domain.DefaultMaxScore,
			Comment:  fmt.Sprintf("Problem %s not found", ans.QID),
			Fallback: true,
		}
		c.Normalize()
		m.metrics.CorrectionRecorded(string(domain.ParseQuestionType(label)), true)
		return c
	}

	unit := domain.NewAnswerUnit(ans, p)
	c := m.evaluator.Evaluate(ctx, unit, p.Criterion, m.cfg.MaxScore)
	m.metrics.CorrectionRecorded(string(unit.Kind()), c.Degraded())
	return c
}

func processingError(qid, label string, r any) domain.Correction {
	c := domain.Correction{
		QID:      qid,
		Type:     label,
		MaxScore: domain.DefaultMaxScore,
		Comment:  fmt.Sprintf("Processing error: %v", r),
		Fallback: true,
	}
	c.Normalize()
	return c
}

// settle applies the terminal transition, copies the record to history if it
// is still tracked, releases the admission slot, and schedules a sweep.
func (m *Manager) settle(ctx context.Context, job domain.Job, apply func(*domain.Job, time.Time) error) {
	now := m.clock.Now()

	var (
		settled  domain.Job
		applyErr error
	)
	tracked := m.stores.Results.Update(job.ID, func(j *domain.Job) {
		if applyErr = apply(j, now); applyErr == nil {
			settled = j.Clone()
		}
	})
	if !tracked {
		// Discarded or reset while running; the record is still built so
		// metadata reflects the outcome.
		settled = job.Clone()
		applyErr = apply(&settled, now)
	}
	if applyErr != nil {
		// Already terminal: a second settle after a panic in the first one.
		m.logger.Error("job settle refused", "job_id", job.ID, "error", applyErr)
		m.metrics.SetActiveJobs(m.release(job.ID))
		return
	}

	m.stores.Metadata.Update(job.ID, func(md *domain.JobMetadata) { md.Settle(settled) })
	if tracked {
		m.stores.History.Put(job.ID, settled.Clone())
	}

	m.metrics.SetActiveJobs(m.release(job.ID))
	m.metrics.JobSettled(string(job.Kind), string(settled.Status), now.Sub(job.CreatedAt))

	eventType := events.TypeJobCompleted
	payload := map[string]any{"kind": job.Kind, "tracked": tracked}
	if settled.Status == domain.JobError {
		eventType = events.TypeJobFailed
		payload["message"] = settled.Message
	} else {
		payload["corrections"] = len(settled.Corrections)
		payload["students"] = len(settled.Results)
	}
	m.emit(ctx, eventType, job.ID, payload)
	m.logger.Info("job settled", "job_id", job.ID, "status", settled.Status, "tracked", tracked)

	m.scheduler.AfterFunc(m.cfg.SweepDelay, func() { m.sweeper.Sweep(m.baseCtx) })
}

// release frees the admission slot of id and returns the active count.
func (m *Manager) release(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
	return len(m.active)
}

// Result returns the active record, then the history record, else a record
// with status not_found.
func (m *Manager) Result(id string) domain.Job {
	if j, ok := m.stores.Results.Get(id); ok {
		return j.Clone()
	}
	if j, ok := m.stores.History.Get(id); ok {
		return j.Clone()
	}
	return domain.Job{ID: id, Status: domain.JobNotFound, Message: NotFoundMessage}
}

// History returns the history record for id.
func (m *Manager) History(id string) (domain.Job, bool) {
	j, ok := m.stores.History.Get(id)
	if !ok {
		return domain.Job{}, false
	}
	return j.Clone(), true
}

// AllHistory returns every history record in insertion order.
func (m *Manager) AllHistory() []Entry[domain.Job] {
	entries := m.stores.History.Entries()
	for i := range entries {
		entries[i].Value = entries[i].Value.Clone()
	}
	return entries
}

// Metadata returns the metadata record for id.
func (m *Manager) Metadata(id string) (domain.JobMetadata, bool) {
	return m.stores.Metadata.Get(id)
}

// AllMetadata returns every metadata record in insertion order.
func (m *Manager) AllMetadata() []Entry[domain.JobMetadata] {
	return m.stores.Metadata.Entries()
}

// AllJobs returns the status of every active result in insertion order.
func (m *Manager) AllJobs() []Entry[domain.JobStatus] {
	entries := m.stores.Results.Entries()
	out := make([]Entry[domain.JobStatus], len(entries))
	for i, e := range entries {
		out[i] = Entry[domain.JobStatus]{ID: e.ID, Value: e.Value.Status}
	}
	return out
}

// Discard forgets a job in the active set, results and metadata. History is
// untouched and a running job is not interrupted; its settle is dropped.
func (m *Manager) Discard(ctx context.Context, id string) string {
	m.mu.Lock()
	delete(m.active, id)
	active := len(m.active)
	m.mu.Unlock()

	m.stores.Results.Delete(id)
	m.stores.Metadata.Delete(id)

	m.metrics.SetActiveJobs(active)
	m.emit(ctx, events.TypeJobDiscarded, id, struct{}{})
	m.logger.Info("job discarded", "job_id", id)
	return fmt.Sprintf("Job %s has been discarded.", id)
}

// ResetAll clears active results and the active set. History and metadata
// are preserved. Both are cleared under the admission lock so a concurrent
// Submit lands either before the reset or after it, never in between.
func (m *Manager) ResetAll(ctx context.Context) string {
	m.mu.Lock()
	clear(m.active)
	n := m.stores.Results.Len()
	m.stores.Results.Clear()
	m.mu.Unlock()

	m.metrics.SetActiveJobs(0)
	m.emit(ctx, events.TypeJobsReset, "", map[string]int{"results": n})
	m.logger.Info("all results reset", "results", n)
	return ResetMessage
}

// Active returns the number of running jobs that count against admission.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Sweep runs retention immediately.
func (m *Manager) Sweep(ctx context.Context) SweepReport { return m.sweeper.Sweep(ctx) }

// Drain blocks until every running job has settled or ctx is done.
func (m *Manager) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) emit(ctx context.Context, eventType, jobID string, payload any) {
	e, err := events.NewEnvelope(eventType, "jobs", jobID, m.clock.Now(), payload)
	if err == nil {
		err = m.events.Append(ctx, e)
	}
	if err != nil {
		m.logger.Warn("failed to emit event", "type", eventType, "job_id", jobID, "error", err)
	}
}
