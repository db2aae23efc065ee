package domain

import (
	"fmt"
	"slices"
	"time"
)

// JobKind distinguishes single-student jobs from whole-class batches.
type JobKind string

const (
	JobKindStudent JobKind = "student"
	JobKindBatch   JobKind = "batch"
)

// JobStatus is the lifecycle state of a grading job.
// Pending covers both queued and running; there is no separate running state.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobError     JobStatus = "error"

	// JobNotFound is returned by lookups for ids that are not tracked.
	// It is never stored.
	JobNotFound JobStatus = "not_found"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobError }

// StudentResult is one student's graded answers inside a batch job.
type StudentResult struct {
	StudentID   string       `json:"student_id"`
	StudentName string       `json:"student_name"`
	Corrections []Correction `json:"corrections"`
}

// Job is the result record of one grading request.
//
// UpdatedAt is the retention timestamp: creation time while pending and
// settle time afterwards. Status only ever moves pending -> completed or
// pending -> error; Complete and Fail refuse any other transition.
type Job struct {
	ID          string          `json:"job_id"`
	Kind        JobKind         `json:"type"`
	Status      JobStatus       `json:"status"`
	StudentID   string          `json:"student_id,omitempty"`
	StudentName string          `json:"student_name,omitempty"`
	Corrections []Correction    `json:"corrections,omitempty"`
	Results     []StudentResult `json:"results,omitempty"`
	Message     string          `json:"message,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time       `json:"timestamp"`
}

// NewJob creates a pending job.
func NewJob(id string, kind JobKind, studentID string, now time.Time) Job {
	return Job{
		ID:        id,
		Kind:      kind,
		Status:    JobPending,
		StudentID: studentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CompleteStudent settles a single-student job with its corrections.
func (j *Job) CompleteStudent(name string, corrections []Correction, now time.Time) error {
	if err := j.settle(JobCompleted, now); err != nil {
		return err
	}
	j.StudentName = name
	j.Corrections = slices.Clone(corrections)
	if j.Corrections == nil {
		j.Corrections = []Correction{}
	}
	return nil
}

// CompleteBatch settles a batch job with one result per graded student.
func (j *Job) CompleteBatch(results []StudentResult, now time.Time) error {
	if err := j.settle(JobCompleted, now); err != nil {
		return err
	}
	j.Results = slices.Clone(results)
	if j.Results == nil {
		j.Results = []StudentResult{}
	}
	return nil
}

// Fail settles the job with an error message.
func (j *Job) Fail(msg string, now time.Time) error {
	if err := j.settle(JobError, now); err != nil {
		return err
	}
	j.Message = msg
	return nil
}

func (j *Job) settle(to JobStatus, now time.Time) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Clone returns a copy that shares no slices with j.
func (j Job) Clone() Job {
	out := j
	out.Corrections = slices.Clone(j.Corrections)
	if j.Results != nil {
		out.Results = make([]StudentResult, len(j.Results))
		for i, r := range j.Results {
			r.Corrections = slices.Clone(r.Corrections)
			out.Results[i] = r
		}
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// JobMetadata is the administrative record of a job. It outlives result
// payloads so the audit trail survives result eviction.
type JobMetadata struct {
	JobID        string     `json:"job_id"`
	Kind         JobKind    `json:"type"`
	Status       JobStatus  `json:"status"`
	StudentID    string     `json:"student_id,omitempty"`
	StudentCount int        `json:"student_count,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// NewJobMetadata creates the metadata record for a freshly admitted job.
func NewJobMetadata(j Job) JobMetadata {
	return JobMetadata{
		JobID:     j.ID,
		Kind:      j.Kind,
		Status:    j.Status,
		StudentID: j.StudentID,
		CreatedAt: j.CreatedAt,
		Timestamp: j.CreatedAt,
	}
}

// Settle copies the terminal state of j into the metadata record.
func (m *JobMetadata) Settle(j Job) {
	m.Status = j.Status
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		m.CompletedAt = &t
	}
	switch {
	case j.Status == JobError:
		m.Error = j.Message
	case j.Kind == JobKindBatch:
		m.StudentCount = len(j.Results)
	}
}
