// Package domain defines the grading records shared by the evaluator, the job
// manager, and the HTTP surface: corrections, answer units, problems, students,
// and the job lifecycle.
//
// Records are plain values. Numeric invariants on corrections are enforced by
// clamping in Normalize rather than by rejecting model output, so a correction
// produced from an out-of-range reply is always usable.
package domain

import (
	"fmt"
	"math"
)

// DefaultMaxScore is the score ceiling used when neither the caller nor the
// model supplies one.
const DefaultMaxScore = 10.0

// StepScore is the graded outcome of one step inside a multi-step answer.
type StepScore struct {
	StepNo    int     `json:"step_no"    validate:"gte=0"`
	Desc      string  `json:"desc"`
	IsCorrect bool    `json:"is_correct"`
	Score     float64 `json:"score"`
}

// Correction is the evaluator's output for one answer to one question.
//
// Score is always within [0, MaxScore] and Confidence within [0, 1] once
// Normalize has run. Type carries the caller's original question label, not
// the internal QuestionType kind.
type Correction struct {
	QID        string      `json:"q_id"`
	Type       string      `json:"type"`
	Score      float64     `json:"score"      validate:"gte=0,ltefield=MaxScore"`
	MaxScore   float64     `json:"max_score"  validate:"gte=0"`
	Confidence float64     `json:"confidence" validate:"gte=0,lte=1"`
	Comment    string      `json:"comment"`
	Steps      []StepScore `json:"steps"      validate:"dive"`
	Hits       []string    `json:"hits,omitempty"`
	Logs       string      `json:"logs,omitempty"`

	// Fallback marks a correction produced without a usable model judgment.
	Fallback bool `json:"-"`
}

// Normalize clamps the correction into its invariants in place.
// A non-positive or non-finite MaxScore falls back to DefaultMaxScore, NaN
// scores collapse to zero, and a nil step list becomes empty so the JSON shape
// is stable.
func (c *Correction) Normalize() {
	if c.MaxScore <= 0 || math.IsNaN(c.MaxScore) || math.IsInf(c.MaxScore, 0) {
		c.MaxScore = DefaultMaxScore
	}
	c.Score = ClampScore(c.Score, c.MaxScore)
	c.Confidence = ClampConfidence(c.Confidence)
	if c.Steps == nil {
		c.Steps = []StepScore{}
	}
}

// Validate checks the correction against its struct tags.
// Callers are expected to Normalize first; a failure here means a bug in the
// producer, not bad model output.
func (c *Correction) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCorrection, err)
	}
	return nil
}

// Degraded reports whether the correction is a fallback produced without a
// trustworthy model judgment. A low-confidence model reply is not degraded.
func (c *Correction) Degraded() bool { return c.Fallback }

// DegradedConfidence is the confidence a failed model call is reported with.
const DegradedConfidence = 0.5

// ClampScore bounds s into [0, ceiling]. NaN maps to 0.
func ClampScore(s, ceiling float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > ceiling {
		return ceiling
	}
	return s
}

// ClampConfidence bounds x into [0, 1]. NaN maps to 0.
func ClampConfidence(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// TotalScore sums the scores and ceilings of a correction list.
func TotalScore(corrections []Correction) (score, maxScore float64) {
	for _, c := range corrections {
		score += c.Score
		maxScore += c.MaxScore
	}
	return score, maxScore
}
