package domain

import "fmt"

// DefaultReferenceAnswer is sent when the problem set carries no model answer.
const DefaultReferenceAnswer = "No answers provided. Please think deeply and derive correct answers based on the problem!"

// AnswerStep is one step of a multi-step submission.
type AnswerStep struct {
	StepNo  int    `json:"step_no"`
	Content string `json:"content"`
	Formula string `json:"formula,omitempty"`
}

// AnswerUnit is one student's submission to one question, joined with the
// question stem it answers.
type AnswerUnit struct {
	QID             string       `json:"q_id"  validate:"required"`
	Type            string       `json:"type"`
	Stem            string       `json:"stem"`
	Text            string       `json:"text"`
	Code            string       `json:"code,omitempty"`
	Language        string       `json:"language,omitempty"`
	ReferenceAnswer string       `json:"correct_ans,omitempty"`
	Steps           []AnswerStep `json:"steps,omitempty"`
}

// Kind returns the internal grading kind of the unit.
func (u AnswerUnit) Kind() QuestionType { return ParseQuestionType(u.Type) }

// Problem is a question record from the problem store.
type Problem struct {
	QID       string `json:"q_id"      validate:"required"`
	Number    string `json:"number"`
	Type      string `json:"type"`
	Stem      string `json:"stem"`
	Criterion string `json:"criterion"`
}

// Validate checks the problem against its struct tags.
func (p *Problem) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProblem, err)
	}
	return nil
}

// StudentAnswer is one raw answer inside a student submission.
type StudentAnswer struct {
	QID     string   `json:"q_id"    validate:"required"`
	Number  string   `json:"number"`
	Type    string   `json:"type"`
	Content string   `json:"content"`
	Flag    []string `json:"flag,omitempty"`
}

// Student is a student submission from the student store.
type Student struct {
	ID      string          `json:"stu_id"   validate:"required"`
	Name    string          `json:"stu_name"`
	Answers []StudentAnswer `json:"stu_ans"  validate:"dive"`
}

// Validate checks the submission against its struct tags.
func (s *Student) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStudent, err)
	}
	return nil
}

// DisplayName returns the student name, or a placeholder derived from the id.
func (s *Student) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return "Student " + s.ID
}

// NewAnswerUnit joins a raw answer with its problem and shapes the
// type-specific fields the evaluator expects.
func NewAnswerUnit(ans StudentAnswer, p Problem) AnswerUnit {
	u := AnswerUnit{
		QID:             ans.QID,
		Type:            ans.Type,
		Stem:            p.Stem,
		Text:            ans.Content,
		ReferenceAnswer: DefaultReferenceAnswer,
	}
	if u.Type == "" {
		u.Type = p.Type
	}
	switch u.Kind() {
	case QuestionCalculation, QuestionProof:
		u.Steps = []AnswerStep{{StepNo: 1, Content: ans.Content}}
	case QuestionProgramming:
		u.Code = ans.Content
		u.Language = "python"
	}
	return u
}
