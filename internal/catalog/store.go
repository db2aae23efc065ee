// Package catalog holds the problem set and student submissions that grading
// jobs read from. Both collections are replaced wholesale; jobs take a
// snapshot at admission and never observe later replacements.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/ahrav/go-grader/internal/domain"
)

// ErrInvalidCatalog indicates a replacement payload failed validation.
var ErrInvalidCatalog = errors.New("invalid catalog payload")

// ProblemSource yields a point-in-time copy of the problem set.
type ProblemSource interface {
	Problems() Problems
}

// StudentSource yields a point-in-time copy of the student submissions.
type StudentSource interface {
	Students() Students
}

// Problems maps question id to problem.
type Problems map[string]domain.Problem

// Problem looks up a question by id.
func (p Problems) Problem(qid string) (domain.Problem, bool) {
	pr, ok := p[qid]
	return pr, ok
}

// Students maps student id to submission.
type Students map[string]domain.Student

// Student looks up a submission by id.
func (s Students) Student(id string) (domain.Student, bool) {
	st, ok := s[id]
	return st, ok
}

// Ordered returns the submissions sorted by key so batch output is stable.
func (s Students) Ordered() []domain.Student {
	out := make([]domain.Student, 0, len(s))
	for _, k := range slices.Sorted(maps.Keys(s)) {
		out = append(out, s[k])
	}
	return out
}

// Store is the in-memory catalog. The zero value is not usable; call NewStore.
type Store struct {
	mu       sync.RWMutex
	problems Problems
	students Students
	logger   *slog.Logger
}

// NewStore returns an empty catalog.
func NewStore() *Store {
	return &Store{
		problems: Problems{},
		students: Students{},
		logger:   slog.Default().With("component", "catalog"),
	}
}

// Problems implements ProblemSource.
func (s *Store) Problems() Problems {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.problems)
}

// Students implements StudentSource. Answer slices are copied.
func (s *Store) Students() Students {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Students, len(s.students))
	for k, v := range s.students {
		v.Answers = slices.Clone(v.Answers)
		out[k] = v
	}
	return out
}

// ReplaceProblems swaps in a new problem set. A problem without a q_id takes
// its map key.
func (s *Store) ReplaceProblems(p Problems) error {
	next := make(Problems, len(p))
	for k, v := range p {
		if v.QID == "" {
			v.QID = k
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: problem %q: %w", ErrInvalidCatalog, k, err)
		}
		next[k] = v
	}

	s.mu.Lock()
	s.problems = next
	s.mu.Unlock()
	s.logger.Info("problems replaced", "count", len(next))
	return nil
}

// ReplaceStudents swaps in new student submissions. Entries without a
// stu_id are kept and later skipped by batch grading.
func (s *Store) ReplaceStudents(st Students) error {
	next := make(Students, len(st))
	for k, v := range st {
		if v.ID != "" {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("%w: student %q: %w", ErrInvalidCatalog, k, err)
			}
		}
		v.Answers = slices.Clone(v.Answers)
		next[k] = v
	}

	s.mu.Lock()
	s.students = next
	s.mu.Unlock()
	s.logger.Info("students replaced", "count", len(next))
	return nil
}

// LoadProblemsFile replaces the problem set from a JSON object file.
func (s *Store) LoadProblemsFile(path string) error {
	var p Problems
	if err := readJSON(path, &p); err != nil {
		return err
	}
	return s.ReplaceProblems(p)
}

// LoadStudentsFile replaces the submissions from a JSON object file.
func (s *Store) LoadStudentsFile(path string) error {
	var st Students
	if err := readJSON(path, &st); err != nil {
		return err
	}
	return s.ReplaceStudents(st)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}
	return nil
}

var (
	_ ProblemSource = (*Store)(nil)
	_ StudentSource = (*Store)(nil)
)
