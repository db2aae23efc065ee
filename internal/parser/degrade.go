package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// Degraded defaults used by ParseScore for fields it cannot recover.
const (
	DefaultScore      = 5.0
	DefaultMaxScore   = 10.0
	DefaultConfidence = 0.8
	DefaultComment    = "Default scoring"
	// RecoveredComment replaces a missing comment when other fields were found.
	RecoveredComment = "AI grading completed!"
)

// StepReply is one graded step as the model reports it.
type StepReply struct {
	StepNo    *int    `json:"step_no"`
	Desc      string  `json:"desc"`
	Comment   string  `json:"comment"`
	IsCorrect *bool   `json:"is_correct"`
	Score     float64 `json:"score"`
}

// ScoreReply is the reply shape every grading prompt asks for. Pointer
// fields are nil when the model omitted them.
type ScoreReply struct {
	Score      *float64    `json:"score"`
	MaxScore   *float64    `json:"max_score"`
	Confidence *float64    `json:"confidence"`
	Comment    *string     `json:"comment"`
	Steps      []StepReply `json:"steps"`
	Hits       []string    `json:"hits"`
}

var (
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	lineComment   = regexp.MustCompile(`//[^\n]*`)
	blockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	scoreField      = regexp.MustCompile(`"score"\s*:\s*([0-9.]+)`)
	maxScoreField   = regexp.MustCompile(`"max_score"\s*:\s*([0-9.]+)`)
	confidenceField = regexp.MustCompile(`"confidence"\s*:\s*([0-9.]+)`)
	commentField    = regexp.MustCompile(`"comment"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	commentLoose    = regexp.MustCompile(`"comment"\s*:\s*"([^"]*)"`)
)

var discardSink = SinkFunc(func(string, string, error) {})

// ParseScore decodes a scoring reply and never fails.
//
// The tiered Parse runs first, then a second pass over the span with trailing
// commas and comments stripped. If both fail, the span goes to the configured
// DiagnosticSink once, and score, max_score, confidence and comment are each
// pulled from the raw text independently, with defaults for whatever is
// missing. The returned Attempt reports the tier that produced the value.
func ParseScore(raw string, opts ...Option) (ScoreReply, *Attempt) {
	cfg := newConfig(opts)

	reply, attempt, err := Parse[ScoreReply](raw, WithSink(discardSink))
	if err == nil {
		return reply, attempt
	}

	repaired := attempt.Repaired
	if attempt.Span != "" {
		cleaned := stripLenientSyntax(attempt.Span)
		if cleaned != attempt.Span {
			second, secondAttempt, err := Parse[ScoreReply](cleaned, WithSink(discardSink))
			if err == nil {
				secondAttempt.Raw = raw
				secondAttempt.Repaired = cleaned
				return second, secondAttempt
			}
			repaired = secondAttempt.Repaired
		}
		cfg.sink.Record(attempt.Span, repaired, attempt.Err)
	}

	reply, recovered := extractFields(raw)
	out := &Attempt{Raw: raw, Span: attempt.Span, Repaired: repaired, Kind: attempt.Kind, Err: attempt.Err, Tier: TierFields}
	if !recovered {
		out.Tier = TierDefaults
	}
	return reply, out
}

func stripLenientSyntax(span string) string {
	s := trailingComma.ReplaceAllString(span, "$1")
	s = blockComment.ReplaceAllString(s, "")
	s = lineComment.ReplaceAllString(s, "")
	return s
}

// extractFields reports whether any field was found in raw.
func extractFields(raw string) (ScoreReply, bool) {
	recovered := false
	number := func(re *regexp.Regexp, def float64) *float64 {
		if m := re.FindStringSubmatch(raw); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				recovered = true
				return &v
			}
		}
		return &def
	}

	reply := ScoreReply{
		Score:      number(scoreField, DefaultScore),
		MaxScore:   number(maxScoreField, DefaultMaxScore),
		Confidence: number(confidenceField, DefaultConfidence),
		Steps:      []StepReply{},
	}

	var comment string
	switch m := commentField.FindStringSubmatch(raw); {
	case m != nil:
		comment = strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(m[1])
		recovered = true
	default:
		if m := commentLoose.FindStringSubmatch(raw); m != nil {
			comment = m[1]
			recovered = true
		} else if recovered {
			comment = RecoveredComment
		} else {
			comment = DefaultComment
		}
	}
	reply.Comment = &comment

	return reply, recovered
}
