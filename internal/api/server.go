// Package api exposes the grading service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ahrav/go-grader/internal/catalog"
	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/jobs"
	"github.com/ahrav/go-grader/pkg/metrics"
)

// Jobs is the job lifecycle surface the handlers use.
type Jobs interface {
	Submit(ctx context.Context, kind domain.JobKind, studentID string) (jobs.SubmitResult, error)
	Result(id string) domain.Job
	Discard(ctx context.Context, id string) string
	ResetAll(ctx context.Context) string
	Metadata(id string) (domain.JobMetadata, bool)
	AllMetadata() []jobs.Entry[domain.JobMetadata]
	AllJobs() []jobs.Entry[domain.JobStatus]
	History(id string) (domain.Job, bool)
	AllHistory() []jobs.Entry[domain.Job]
}

// Catalog is the writable problem and student store.
type Catalog interface {
	ReplaceProblems(p catalog.Problems) error
	ReplaceStudents(s catalog.Students) error
}

// Options configures the router.
type Options struct {
	Jobs           Jobs
	Catalog        Catalog
	Metrics        *metrics.Collector
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := chi.NewRouter()
	if opts.Metrics != nil {
		router.Use(metrics.NewMiddleware(opts.Metrics).Handler)
	}
	router.Use(
		cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}),
		middleware.RequestID,
		requestLogger(logger),
		middleware.Recoverer,
	)

	h := &handlers{jobs: opts.Jobs, catalog: opts.Catalog, logger: logger}

	router.Get("/health", h.health)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler())
	}

	router.Route("/ai_grading", func(r chi.Router) {
		r.Post("/grade_student/", h.gradeStudent)
		r.Post("/grade_all/", h.gradeAll)
		r.Get("/grade_result/{jobID}", h.gradeResult)
		r.Delete("/discard_job/{jobID}", h.discardJob)
		r.Delete("/reset_all_grading", h.resetAll)
		r.Get("/job_metadata/{jobID}", h.jobMetadata)
		r.Get("/all_job_metadata", h.allJobMetadata)
		r.Get("/all_jobs", h.allJobs)
		r.Get("/history/{jobID}", h.history)
		r.Get("/all_history", h.allHistory)
	})

	router.Route("/human_edit", func(r chi.Router) {
		r.Post("/problems", h.replaceProblems)
		r.Post("/stu_ans", h.replaceStudents)
	})

	return router
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}

// Server runs the router until its context is cancelled.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewServer binds handler to address.
func NewServer(address string, handler http.Handler, shutdownTimeout time.Duration) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              address,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          slog.Default().With("component", "api_server"),
	}
}

// Run serves until ctx is done, then shuts down gracefully. A nil listener
// listens on the configured address.
func (s *Server) Run(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", s.httpServer.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.httpServer.SetKeepAlivesEnabled(false)
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("api server shutdown failed", "error", err)
		}
		s.logger.Info("api server terminated")
	}()

	s.logger.Info("api server listening", "address", listener.Addr().String())
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}
