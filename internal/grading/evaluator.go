// Package grading turns one student answer into a Correction by prompting the
// model and decoding its reply.
//
// Evaluate never returns an error. Model failures, unparseable replies and
// panics each map to a low-confidence correction so a job always has one
// record per answer.
package grading

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/llm"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/parser"
	"github.com/ahrav/go-grader/internal/prompt"
)

// Fallback values for corrections that carry no model judgment.
const (
	ModelFailedComment  = "LLM call failed, using default scoring"
	ModelFailedScore    = 5.0
	UnparsedConfidence  = 0.3
	RecoveredConfidence = 0.8
)

// Evaluator grades answer units. It is safe for concurrent use.
type Evaluator struct {
	adapter llm.ModelAdapter
	prompts prompt.Builder
	sink    parser.DiagnosticSink
	logger  *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPrompts sets the template source. The bundled templates are used otherwise.
func WithPrompts(b prompt.Builder) Option { return func(e *Evaluator) { e.prompts = b } }

// WithDiagnosticSink receives replies that no parse tier could recover.
func WithDiagnosticSink(s parser.DiagnosticSink) Option {
	return func(e *Evaluator) { e.sink = s }
}

// WithLogger sets the base logger; the evaluator adds its component tag.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l.With("component", "evaluator") }
}

// NewEvaluator creates an evaluator that grades through adapter.
func NewEvaluator(adapter llm.ModelAdapter, opts ...Option) *Evaluator {
	e := &Evaluator{
		adapter: adapter,
		prompts: prompt.Default(),
		logger:  slog.Default().With("component", "evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate grades unit against rubric. maxScore is the caller's ceiling; a
// positive max_score in the model reply takes precedence.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	unit domain.AnswerUnit,
	rubric string,
	maxScore float64,
) (c domain.Correction) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluation panicked", "q_id", unit.QID, "panic", r)
			c = domain.Correction{
				QID:      unit.QID,
				Type:     unit.Type,
				MaxScore: maxScore,
				Comment:  fmt.Sprintf("Grading error: %v", r),
				Fallback: true,
			}
			c.Normalize()
		}
	}()

	kind := unit.Kind()
	text := e.buildPrompt(kind, unit, rubric, maxScore)

	raw, err := e.adapter.Invoke(ctx, text)
	if err != nil {
		e.logger.Warn("model call failed",
			"q_id", unit.QID,
			"kind", kind,
			"error_type", errorType(err),
			"error", err)
		c = modelFailed(kind, maxScore)
	} else if kind == domain.QuestionCalculation {
		c = e.fromCalculationReply(raw, maxScore)
	} else {
		c = e.fromReply(raw, unit.QID, maxScore)
	}

	c.QID = unit.QID
	c.Type = unit.Type
	if c.Type == "" {
		c.Type = kind.Label()
	}
	c.Normalize()
	return c
}

func errorType(err error) string {
	if ce := llmerrors.ClassifyLLMError(err); ce != nil {
		return string(ce.Type)
	}
	return string(llmerrors.ErrorTypeUnknown)
}

func (e *Evaluator) buildPrompt(
	kind domain.QuestionType,
	unit domain.AnswerUnit,
	rubric string,
	maxScore float64,
) string {
	fields := promptFields(unit, rubric, maxScore)
	if e.prompts != nil {
		text, err := e.prompts.Build(string(kind), fields)
		if err == nil {
			return text
		}
		e.logger.Warn("prompt build failed, using inline default",
			"q_id", unit.QID, "template", kind, "error", err)
	}
	return prompt.Render(defaultPrompts[kind], fields)
}

func promptFields(unit domain.AnswerUnit, rubric string, maxScore float64) prompt.Fields {
	if maxScore <= 0 {
		maxScore = domain.DefaultMaxScore
	}
	return prompt.Fields{
		prompt.FieldProblem:       unit.Stem,
		prompt.FieldAnswer:        unit.Text,
		prompt.FieldCorrectAnswer: unit.ReferenceAnswer,
		prompt.FieldRubric:        rubric,
		prompt.FieldSteps:         formatSteps(unit),
		prompt.FieldCode:          unit.Code,
		prompt.FieldLanguage:      unit.Language,
		prompt.FieldContext:       "",
		prompt.FieldMaxScore:      strconv.FormatFloat(maxScore, 'f', -1, 64),
	}
}

func formatSteps(unit domain.AnswerUnit) string {
	if len(unit.Steps) == 0 {
		return unit.Text
	}
	var b strings.Builder
	for i, s := range unit.Steps {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Step %d: %s", s.StepNo, s.Content)
		if s.Formula != "" {
			fmt.Fprintf(&b, " [%s]", s.Formula)
		}
	}
	return b.String()
}

func modelFailed(kind domain.QuestionType, maxScore float64) domain.Correction {
	c := domain.Correction{
		MaxScore:   maxScore,
		Confidence: domain.DegradedConfidence,
		Comment:    ModelFailedComment,
		Steps:      []domain.StepScore{},
		Fallback:   true,
	}
	if kind == domain.QuestionCalculation {
		c.Score = ModelFailedScore
		c.Steps = []domain.StepScore{{
			StepNo:    1,
			Desc:      ModelFailedComment,
			IsCorrect: true,
			Score:     ModelFailedScore,
		}}
	}
	return c
}

// fromCalculationReply never fails: ParseScore degrades to field extraction
// and then to fixed defaults.
func (e *Evaluator) fromCalculationReply(raw string, maxScore float64) domain.Correction {
	reply, attempt := parser.ParseScore(raw, e.parseOptions()...)
	steps := convertSteps(reply.Steps)

	c := domain.Correction{
		MaxScore:   pickMax(reply.MaxScore, maxScore),
		Confidence: RecoveredConfidence,
		Steps:      steps,
		Hits:       reply.Hits,
		Fallback:   attempt.Tier == parser.TierDefaults,
	}
	switch {
	case reply.Score != nil:
		c.Score = *reply.Score
	case len(steps) > 0:
		for _, s := range steps {
			c.Score += s.Score
		}
	default:
		c.Score = parser.DefaultScore
	}
	if reply.Confidence != nil {
		c.Confidence = *reply.Confidence
	}
	if reply.Comment != nil {
		c.Comment = *reply.Comment
	} else {
		c.Comment = fmt.Sprintf("The calculation contains %d steps.", len(steps))
	}
	return c
}

func (e *Evaluator) parseOptions() []parser.Option {
	if e.sink == nil {
		return nil
	}
	return []parser.Option{parser.WithSink(e.sink)}
}

func (e *Evaluator) fromReply(raw, qid string, maxScore float64) domain.Correction {
	reply, attempt, err := parser.Parse[parser.ScoreReply](raw, e.parseOptions()...)
	if err != nil {
		e.logger.Warn("model reply unparseable", "q_id", qid, "kind", attempt.Kind, "error", err)
		return domain.Correction{
			MaxScore:   maxScore,
			Confidence: UnparsedConfidence,
			Comment:    fmt.Sprintf("Failed to parse model reply (%s)", attempt.Kind),
			Logs:       raw,
			Fallback:   true,
		}
	}
	if attempt.Tier > parser.TierDirect {
		e.logger.Debug("model reply repaired", "q_id", qid, "tier", attempt.Tier)
	}

	steps := convertSteps(reply.Steps)
	c := domain.Correction{
		MaxScore:   pickMax(reply.MaxScore, maxScore),
		Confidence: RecoveredConfidence,
		Steps:      steps,
		Hits:       reply.Hits,
	}
	if reply.Score != nil {
		c.Score = *reply.Score
	} else {
		for _, s := range steps {
			c.Score += s.Score
		}
	}
	if reply.Confidence != nil {
		c.Confidence = *reply.Confidence
	}
	if reply.Comment != nil {
		c.Comment = *reply.Comment
	}
	return c
}

func pickMax(fromReply *float64, fromCaller float64) float64 {
	if fromReply != nil && *fromReply > 0 {
		return *fromReply
	}
	return fromCaller
}

func convertSteps(in []parser.StepReply) []domain.StepScore {
	out := make([]domain.StepScore, 0, len(in))
	for i, s := range in {
		no := i + 1
		if s.StepNo != nil && *s.StepNo >= 0 {
			no = *s.StepNo
		}
		desc := s.Desc
		if desc == "" {
			desc = s.Comment
		}
		if desc == "" {
			desc = "Step " + strconv.Itoa(no)
		}
		correct := true
		if s.IsCorrect != nil {
			correct = *s.IsCorrect
		}
		out = append(out, domain.StepScore{StepNo: no, Desc: desc, IsCorrect: correct, Score: s.Score})
	}
	return out
}
