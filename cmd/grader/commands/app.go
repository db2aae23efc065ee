// Package commands implements the grader CLI actions.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ahrav/go-grader/internal/config"
	"github.com/ahrav/go-grader/internal/grading"
	"github.com/ahrav/go-grader/internal/llm"
	"github.com/ahrav/go-grader/internal/parser"
	"github.com/ahrav/go-grader/internal/prompt"
	"github.com/ahrav/go-grader/pkg/metrics"
)

// AppContext holds what every command needs: configuration, logging and a
// ready evaluator.
type AppContext struct {
	Config    *config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Collector
	Adapter   *llm.Adapter
	Evaluator *grading.Evaluator
}

// NewAppContext loads configuration from envFile and the environment and
// assembles the model pipeline.
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	collector := metrics.New()
	adapter, err := llm.NewAdapter(ctx, cfg.LLMConfig(),
		llm.WithMetrics(collector),
		llm.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	prompts, err := prompt.Load(cfg.Prompts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	var sink parser.DiagnosticSink = parser.NewLogSink(logger)
	if cfg.Prompts.DiagnosticsDir != "" {
		dirSink, err := parser.NewDirSink(cfg.Prompts.DiagnosticsDir)
		if err != nil {
			return nil, err
		}
		sink = dirSink
	}

	evaluator := grading.NewEvaluator(adapter,
		grading.WithPrompts(prompts),
		grading.WithDiagnosticSink(sink),
		grading.WithLogger(logger),
	)

	return &AppContext{
		Config:    cfg,
		Logger:    logger,
		Metrics:   collector,
		Adapter:   adapter,
		Evaluator: evaluator,
	}, nil
}
