package grading

import "github.com/ahrav/go-grader/internal/domain"

// Inline prompts used when the configured builder cannot produce one.
var defaultPrompts = map[domain.QuestionType]string{
	domain.QuestionConcept: `You are a teacher grading a concept question.
Question: {problem}
Student answer: {answer}
Rubric: {rubric}
Reply with JSON only: {"score": <0-{max_score}>, "max_score": {max_score}, "confidence": <0-1>, "comment": "<feedback>", "steps": [], "hits": []}`,

	domain.QuestionCalculation: `You are a mathematics teacher grading a calculation problem.
Problem: {problem}
Student answer: {answer}
Reference answer: {correct_answer}
Rubric: {rubric}
Reply with JSON only: {"score": <0-{max_score}>, "max_score": {max_score}, "confidence": <0-1>, "comment": "<feedback>", "steps": [{"step_no": 1, "desc": "<step>", "is_correct": true, "score": <points>}]}`,

	domain.QuestionProof: `You are a mathematics teacher grading a proof.
Statement: {problem}
Student proof:
{steps}
Rubric: {rubric}
Reply with JSON only: {"score": <0-{max_score}>, "max_score": {max_score}, "confidence": <0-1>, "comment": "<feedback>", "steps": [{"step_no": 1, "desc": "<step>", "is_correct": true, "score": <points>}]}`,

	domain.QuestionProgramming: `You are a programming instructor grading code.
Task: {problem}
Student code ({language}):
{code}
Rubric: {rubric}
Reply with JSON only: {"score": <0-{max_score}>, "max_score": {max_score}, "confidence": <0-1>, "comment": "<feedback>", "steps": []}`,
}
