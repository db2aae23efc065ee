package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/ahrav/go-grader/internal/api"
	"github.com/ahrav/go-grader/internal/catalog"
	"github.com/ahrav/go-grader/internal/jobs"
	"github.com/ahrav/go-grader/pkg/events"
)

const drainTimeout = 30 * time.Second

// ServeAction runs the HTTP service until the process is interrupted, then
// waits for in-flight jobs to settle.
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	cfg := app.Config

	store := catalog.NewStore()
	if path := cfg.Data.ProblemsFile; path != "" {
		if err := store.LoadProblemsFile(path); err != nil {
			return err
		}
	}
	if path := cfg.Data.StudentsFile; path != "" {
		if err := store.LoadStudentsFile(path); err != nil {
			return err
		}
	}

	manager, err := jobs.NewManager(app.Evaluator, store, store,
		jobs.WithConfig(cfg.JobsConfig()),
		jobs.WithEventSink(events.NewLogSink(app.Logger)),
		jobs.WithMetrics(app.Metrics),
		jobs.WithLogger(app.Logger),
		jobs.WithBaseContext(ctx),
	)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Options{
		Jobs:           manager,
		Catalog:        store,
		Metrics:        app.Metrics,
		AllowedOrigins: cfg.Server.CORSOrigins,
		Logger:         app.Logger,
	})
	server := api.NewServer(cfg.Server.Address, router, cfg.Server.ShutdownTimeout)

	app.Logger.Info("starting grader",
		"address", cfg.Server.Address,
		"model", cfg.LLM.Model,
		"max_active_jobs", cfg.Jobs.MaxActive,
		"problems", len(store.Problems()),
		"students", len(store.Students()))

	runErr := server.Run(ctx, nil)

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := manager.Drain(drainCtx); err != nil {
		app.Logger.Warn("jobs still running at exit", "active", manager.Active(), "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("serve: %w", runErr)
	}
	return nil
}
