package domain

import "strings"

// QuestionType is the internal grading kind a question label dispatches to.
type QuestionType string

const (
	QuestionConcept     QuestionType = "concept"
	QuestionCalculation QuestionType = "calculation"
	QuestionProof       QuestionType = "proof"
	QuestionProgramming QuestionType = "programming"
)

// Source labels as they appear in uploaded problem sets.
const (
	LabelConcept     = "概念题"
	LabelCalculation = "计算题"
	LabelProof       = "证明题"
	LabelReasoning   = "推理题"
	LabelProgramming = "编程题"
	LabelOther       = "其他"
)

var questionLabels = map[string]QuestionType{
	LabelConcept:     QuestionConcept,
	LabelOther:       QuestionConcept,
	"其它":             QuestionConcept,
	LabelCalculation: QuestionCalculation,
	LabelProof:       QuestionProof,
	LabelReasoning:   QuestionProof,
	LabelProgramming: QuestionProgramming,

	string(QuestionConcept):     QuestionConcept,
	string(QuestionCalculation): QuestionCalculation,
	string(QuestionProof):       QuestionProof,
	string(QuestionProgramming): QuestionProgramming,
	"reasoning":                 QuestionProof,
	"other":                     QuestionConcept,
}

// ParseQuestionType maps a problem-set label to its grading kind.
// Unknown or empty labels grade as concept questions.
func ParseQuestionType(label string) QuestionType {
	if qt, ok := questionLabels[strings.ToLower(strings.TrimSpace(label))]; ok {
		return qt
	}
	return QuestionConcept
}

// Label returns the canonical source label for the kind.
func (q QuestionType) Label() string {
	switch q {
	case QuestionCalculation:
		return LabelCalculation
	case QuestionProof:
		return LabelProof
	case QuestionProgramming:
		return LabelProgramming
	default:
		return LabelConcept
	}
}
