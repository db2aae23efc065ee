package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/ahrav/go-grader/internal/catalog"
	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/jobs"
)

// Reply statuses.
const (
	StatusOK       = "ok"
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusNotFound = "not_found"
)

type handlers struct {
	jobs    Jobs
	catalog Catalog
	logger  *slog.Logger
}

// StatusReply is the body of every acknowledgement, rejection and miss.
type StatusReply struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (StatusReply) Render(http.ResponseWriter, *http.Request) error { return nil }

// SubmitReply carries the id of an admitted job.
type SubmitReply struct {
	JobID string `json:"job_id"`
}

func (SubmitReply) Render(http.ResponseWriter, *http.Request) error { return nil }

// GradeStudentRequest is the body of POST /ai_grading/grade_student/.
type GradeStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, StatusReply{Status: StatusOK})
}

func (h *handlers) gradeStudent(w http.ResponseWriter, r *http.Request) {
	var req GradeStudentRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.badRequest(w, r, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := domain.ValidateStruct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	h.submit(w, r, domain.JobKindStudent, req.StudentID)
}

func (h *handlers) gradeAll(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, domain.JobKindBatch, "")
}

func (h *handlers) submit(w http.ResponseWriter, r *http.Request, kind domain.JobKind, studentID string) {
	res, err := h.jobs.Submit(r.Context(), kind, studentID)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	if res.Rejected {
		_ = render.Render(w, r, StatusReply{Status: StatusError, Message: res.Message})
		return
	}
	_ = render.Render(w, r, SubmitReply{JobID: res.JobID})
}

func (h *handlers) gradeResult(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.Result(chi.URLParam(r, "jobID"))
	if job.Status == domain.JobNotFound {
		_ = render.Render(w, r, StatusReply{Status: StatusNotFound, Message: job.Message})
		return
	}
	render.JSON(w, r, job)
}

func (h *handlers) discardJob(w http.ResponseWriter, r *http.Request) {
	msg := h.jobs.Discard(r.Context(), chi.URLParam(r, "jobID"))
	_ = render.Render(w, r, StatusReply{Status: StatusSuccess, Message: msg})
}

func (h *handlers) resetAll(w http.ResponseWriter, r *http.Request) {
	msg := h.jobs.ResetAll(r.Context())
	_ = render.Render(w, r, StatusReply{Status: StatusSuccess, Message: msg})
}

func (h *handlers) jobMetadata(w http.ResponseWriter, r *http.Request) {
	md, ok := h.jobs.Metadata(chi.URLParam(r, "jobID"))
	if !ok {
		_ = render.Render(w, r, StatusReply{Status: StatusNotFound, Message: jobs.MetadataNotFoundMessage})
		return
	}
	render.JSON(w, r, md)
}

func (h *handlers) allJobMetadata(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, orderedObject[domain.JobMetadata](h.jobs.AllMetadata()))
}

func (h *handlers) allJobs(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, orderedObject[domain.JobStatus](h.jobs.AllJobs()))
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobs.History(chi.URLParam(r, "jobID"))
	if !ok {
		_ = render.Render(w, r, StatusReply{Status: StatusNotFound, Message: jobs.HistoryNotFoundMessage})
		return
	}
	render.JSON(w, r, job)
}

func (h *handlers) allHistory(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, orderedObject[domain.Job](h.jobs.AllHistory()))
}

func (h *handlers) replaceProblems(w http.ResponseWriter, r *http.Request) {
	var p catalog.Problems
	if err := render.DecodeJSON(r.Body, &p); err != nil {
		h.badRequest(w, r, fmt.Errorf("invalid problems payload: %w", err))
		return
	}
	if err := h.catalog.ReplaceProblems(p); err != nil {
		h.badRequest(w, r, err)
		return
	}
	_ = render.Render(w, r, StatusReply{Status: StatusSuccess, Message: fmt.Sprintf("Replaced %d problems.", len(p))})
}

func (h *handlers) replaceStudents(w http.ResponseWriter, r *http.Request) {
	var s catalog.Students
	if err := render.DecodeJSON(r.Body, &s); err != nil {
		h.badRequest(w, r, fmt.Errorf("invalid student payload: %w", err))
		return
	}
	if err := h.catalog.ReplaceStudents(s); err != nil {
		h.badRequest(w, r, err)
		return
	}
	_ = render.Render(w, r, StatusReply{Status: StatusSuccess, Message: fmt.Sprintf("Replaced %d student submissions.", len(s))})
}

func (h *handlers) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, catalog.ErrInvalidCatalog) {
		status = http.StatusUnprocessableEntity
	}
	h.logger.Warn("request rejected", "path", r.URL.Path, "status", status, "error", err)
	render.Status(r, status)
	_ = render.Render(w, r, StatusReply{Status: StatusError, Message: err.Error()})
}

// orderedObject marshals entries as a JSON object keeping entry order.
type orderedObject[V any] []jobs.Entry[V]

func (o orderedObject[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.ID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
