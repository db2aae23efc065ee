package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/ahrav/go-grader/internal/domain"
)

// GradeAction grades a single answer file against a problem and prints the
// correction as JSON.
func GradeAction(ctx context.Context, cmd *cli.Command) error {
	unit, err := unitFromFiles(
		cmd.String("type"),
		cmd.String("problem"),
		cmd.String("answer"),
	)
	if err != nil {
		return err
	}

	rubric := ""
	if path := cmd.String("rubric"); path != "" {
		if rubric, err = readText(path); err != nil {
			return err
		}
	}

	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}

	c := app.Evaluator.Evaluate(ctx, unit, rubric, cmd.Float("max-score"))
	return writeCorrection(cmd.Root().Writer, c)
}

func unitFromFiles(questionType, problemPath, answerPath string) (domain.AnswerUnit, error) {
	answer, err := readText(answerPath)
	if err != nil {
		return domain.AnswerUnit{}, err
	}
	var stem string
	if problemPath != "" {
		if stem, err = readText(problemPath); err != nil {
			return domain.AnswerUnit{}, err
		}
	}

	qid := filepath.Base(answerPath)
	return domain.NewAnswerUnit(
		domain.StudentAnswer{QID: qid, Type: questionType, Content: answer},
		domain.Problem{QID: qid, Type: questionType, Stem: stem},
	), nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func writeCorrection(w io.Writer, c domain.Correction) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(c)
}
