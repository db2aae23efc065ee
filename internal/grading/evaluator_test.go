package grading_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/grading"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/parser"
	"github.com/ahrav/go-grader/internal/prompt"
)

// fakeAdapter replies with a fixed text or error and records prompts.
type fakeAdapter struct {
	mu      sync.Mutex
	reply   string
	err     error
	panic   any
	prompts []string
}

func (f *fakeAdapter) Invoke(_ context.Context, p string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	if f.panic != nil {
		panic(f.panic)
	}
	return f.reply, f.err
}

func unit(label, text string) domain.AnswerUnit {
	return domain.NewAnswerUnit(
		domain.StudentAnswer{QID: "q1", Type: label, Content: text},
		domain.Problem{QID: "q1", Stem: "Compute 2+2", Criterion: "exact"},
	)
}

// TestEvaluate_Replies maps well-formed and repaired replies onto corrections.
func TestEvaluate_Replies(t *testing.T) {
	tests := []struct {
		name           string
		label          string
		reply          string
		maxScore       float64
		wantScore      float64
		wantMax        float64
		wantConfidence float64
		wantComment    string
		wantSteps      int
	}{
		{
			name:           "concept clean",
			label:          domain.LabelConcept,
			reply:          `{"score": 8, "max_score": 10, "confidence": 0.9, "comment": "solid", "hits": ["a"]}`,
			maxScore:       10,
			wantScore:      8,
			wantMax:        10,
			wantConfidence: 0.9,
			wantComment:    "solid",
		},
		{
			name:           "score clamped to reply max",
			label:          domain.LabelProof,
			reply:          `{"score": 14, "max_score": 12, "confidence": 1.4, "comment": "over"}`,
			maxScore:       10,
			wantScore:      12,
			wantMax:        12,
			wantConfidence: 1,
			wantComment:    "over",
		},
		{
			name:           "non-positive reply max falls back to caller",
			label:          domain.LabelProgramming,
			reply:          `{"score": -2, "max_score": 0, "confidence": 0.6, "comment": "neg"}`,
			maxScore:       20,
			wantScore:      0,
			wantMax:        20,
			wantConfidence: 0.6,
			wantComment:    "neg",
		},
		{
			name:           "calculation sums steps when score is missing",
			label:          domain.LabelCalculation,
			reply:          `{"steps": [{"step_no": 1, "score": 3}, {"step_no": 2, "score": 2.5, "is_correct": false}]}`,
			maxScore:       10,
			wantScore:      5.5,
			wantMax:        10,
			wantConfidence: grading.RecoveredConfidence,
			wantComment:    "The calculation contains 2 steps.",
			wantSteps:      2,
		},
		{
			name:           "calculation degrades to defaults",
			label:          domain.LabelCalculation,
			reply:          "I think it is fine.",
			maxScore:       10,
			wantScore:      parser.DefaultScore,
			wantMax:        parser.DefaultMaxScore,
			wantConfidence: parser.DefaultConfidence,
			wantComment:    parser.DefaultComment,
		},
		{
			name:           "escape repair",
			label:          domain.LabelConcept,
			reply:          `{"score": 6, "comment": "see \alpha"}`,
			maxScore:       10,
			wantScore:      6,
			wantMax:        10,
			wantConfidence: grading.RecoveredConfidence,
			wantComment:    `see \alpha`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := grading.NewEvaluator(&fakeAdapter{reply: tt.reply})
			u := unit(tt.label, "4")
			c := ev.Evaluate(context.Background(), u, "exact", tt.maxScore)

			assert.Equal(t, "q1", c.QID)
			assert.Equal(t, tt.label, c.Type)
			assert.InDelta(t, tt.wantScore, c.Score, 1e-9)
			assert.InDelta(t, tt.wantMax, c.MaxScore, 1e-9)
			assert.InDelta(t, tt.wantConfidence, c.Confidence, 1e-9)
			assert.Equal(t, tt.wantComment, c.Comment)
			assert.Len(t, c.Steps, tt.wantSteps)
			require.NoError(t, c.Validate())
		})
	}
}

// TestEvaluate_StepDefaults fills missing step fields.
func TestEvaluate_StepDefaults(t *testing.T) {
	reply := `{"score": 4, "steps": [{"score": 1}, {"comment": "slip", "score": 1, "is_correct": false}, {"step_no": 7, "desc": "end", "score": 2}]}`
	ev := grading.NewEvaluator(&fakeAdapter{reply: reply})
	c := ev.Evaluate(context.Background(), unit(domain.LabelProof, "proof"), "", 10)

	require.Len(t, c.Steps, 3)
	assert.Equal(t, domain.StepScore{StepNo: 1, Desc: "Step 1", IsCorrect: true, Score: 1}, c.Steps[0])
	assert.Equal(t, domain.StepScore{StepNo: 2, Desc: "slip", IsCorrect: false, Score: 1}, c.Steps[1])
	assert.Equal(t, domain.StepScore{StepNo: 7, Desc: "end", IsCorrect: true, Score: 2}, c.Steps[2])
}

// TestEvaluate_ModelFailure degrades without raising.
func TestEvaluate_ModelFailure(t *testing.T) {
	callErr := &llmerrors.ModelCallError{Attempts: 3, Last: errors.New("connection refused")}

	t.Run("calculation keeps one default step", func(t *testing.T) {
		ev := grading.NewEvaluator(&fakeAdapter{err: callErr})
		c := ev.Evaluate(context.Background(), unit(domain.LabelCalculation, "4"), "", 10)

		assert.InDelta(t, grading.ModelFailedScore, c.Score, 1e-9)
		assert.InDelta(t, domain.DegradedConfidence, c.Confidence, 1e-9)
		assert.Equal(t, grading.ModelFailedComment, c.Comment)
		require.Len(t, c.Steps, 1)
		assert.True(t, c.Steps[0].IsCorrect)
		assert.True(t, c.Degraded())
	})

	t.Run("other kinds score zero", func(t *testing.T) {
		ev := grading.NewEvaluator(&fakeAdapter{err: callErr})
		c := ev.Evaluate(context.Background(), unit(domain.LabelConcept, "x"), "", 10)

		assert.Zero(t, c.Score)
		assert.InDelta(t, domain.DegradedConfidence, c.Confidence, 1e-9)
		assert.Equal(t, grading.ModelFailedComment, c.Comment)
		assert.Empty(t, c.Steps)
	})
}

// TestEvaluate_Unparseable keeps the raw reply in logs.
func TestEvaluate_Unparseable(t *testing.T) {
	var recorded []string
	sink := parser.SinkFunc(func(original, _ string, _ error) { recorded = append(recorded, original) })

	raw := `{"score": high, "comment": "x"}`
	ev := grading.NewEvaluator(&fakeAdapter{reply: raw}, grading.WithDiagnosticSink(sink))
	c := ev.Evaluate(context.Background(), unit(domain.LabelConcept, "x"), "", 10)

	assert.Zero(t, c.Score)
	assert.InDelta(t, grading.UnparsedConfidence, c.Confidence, 1e-9)
	assert.Equal(t, raw, c.Logs)
	assert.Contains(t, c.Comment, "Failed to parse model reply")
	assert.Len(t, recorded, 1)
}

// TestEvaluate_CalculationUnparseableReachesSink reports calculation replies
// that only field extraction could salvage.
func TestEvaluate_CalculationUnparseableReachesSink(t *testing.T) {
	var recorded []string
	sink := parser.SinkFunc(func(original, _ string, _ error) { recorded = append(recorded, original) })

	raw := `{"score": 6, "comment": unquoted}`
	ev := grading.NewEvaluator(&fakeAdapter{reply: raw}, grading.WithDiagnosticSink(sink))
	c := ev.Evaluate(context.Background(), unit(domain.LabelCalculation, "x = 4"), "", 10)

	assert.InDelta(t, 6, c.Score, 1e-9)
	assert.Equal(t, []string{raw}, recorded)
}

// TestEvaluate_LoggerTagsComponentOnce tags the base logger exactly once.
func TestEvaluate_LoggerTagsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ev := grading.NewEvaluator(&fakeAdapter{reply: "not json"},
		grading.WithLogger(logger),
		grading.WithDiagnosticSink(parser.SinkFunc(func(string, string, error) {})),
	)
	ev.Evaluate(context.Background(), unit(domain.LabelConcept, "x"), "", 10)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines[0])
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, "component="), line)
		assert.Contains(t, line, "component=evaluator")
	}
}

// TestEvaluate_DegradedMarksFallbacksOnly separates fallbacks from genuine
// low-confidence judgments.
func TestEvaluate_DegradedMarksFallbacksOnly(t *testing.T) {
	tests := []struct {
		name         string
		adapter      *fakeAdapter
		label        string
		wantDegraded bool
	}{
		{name: "low confidence reply", adapter: &fakeAdapter{reply: `{"score": 3, "confidence": 0.4, "comment": "unsure"}`}, label: domain.LabelConcept},
		{name: "calculation fields recovered", adapter: &fakeAdapter{reply: `{"score": 6, "comment": oops}`}, label: domain.LabelCalculation},
		{name: "calculation nothing recovered", adapter: &fakeAdapter{reply: "no idea"}, label: domain.LabelCalculation, wantDegraded: true},
		{name: "unparseable reply", adapter: &fakeAdapter{reply: "no idea"}, label: domain.LabelConcept, wantDegraded: true},
		{name: "model failure", adapter: &fakeAdapter{err: errors.New("down")}, label: domain.LabelProof, wantDegraded: true},
		{name: "panic", adapter: &fakeAdapter{panic: "boom"}, label: domain.LabelConcept, wantDegraded: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := grading.NewEvaluator(tt.adapter, grading.WithDiagnosticSink(parser.SinkFunc(func(string, string, error) {})))
			c := ev.Evaluate(context.Background(), unit(tt.label, "x"), "", 10)
			assert.Equal(t, tt.wantDegraded, c.Degraded())
		})
	}
}

// TestEvaluate_Panic recovers into a zero-score correction.
func TestEvaluate_Panic(t *testing.T) {
	ev := grading.NewEvaluator(&fakeAdapter{panic: "boom"})
	var c domain.Correction
	require.NotPanics(t, func() {
		c = ev.Evaluate(context.Background(), unit(domain.LabelConcept, "x"), "", 10)
	})
	assert.Equal(t, "q1", c.QID)
	assert.Zero(t, c.Score)
	assert.Zero(t, c.Confidence)
	assert.Equal(t, "Grading error: boom", c.Comment)
	assert.NotNil(t, c.Steps)
}

// TestEvaluate_PromptFallback uses the inline prompt when the builder has no template.
func TestEvaluate_PromptFallback(t *testing.T) {
	adapter := &fakeAdapter{reply: `{"score": 1}`}
	ev := grading.NewEvaluator(adapter, grading.WithPrompts(prompt.NewRegistry(nil)))
	ev.Evaluate(context.Background(), unit(domain.LabelProgramming, "print(4)"), "runs", 10)

	require.Len(t, adapter.prompts, 1)
	assert.Contains(t, adapter.prompts[0], "print(4)")
	assert.Contains(t, adapter.prompts[0], "(python)")
	assert.Contains(t, adapter.prompts[0], "runs")
	assert.NotContains(t, adapter.prompts[0], "{code}")
}

// TestEvaluate_PromptFields renders the bundled template for each kind.
func TestEvaluate_PromptFields(t *testing.T) {
	adapter := &fakeAdapter{reply: `{"score": 1}`}
	ev := grading.NewEvaluator(adapter)
	ev.Evaluate(context.Background(), unit(domain.LabelCalculation, "2+2=4"), "exact", 15)

	require.Len(t, adapter.prompts, 1)
	p := adapter.prompts[0]
	assert.Contains(t, p, "Compute 2+2")
	assert.Contains(t, p, "2+2=4")
	assert.Contains(t, p, domain.DefaultReferenceAnswer)
	assert.Contains(t, p, `"max_score": 15`)
}
