package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-grader/internal/domain"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestUnitFromFiles shapes type-specific fields from the files on disk.
func TestUnitFromFiles(t *testing.T) {
	dir := t.TempDir()
	answer := writeFile(t, dir, "q7.txt", "x = 4")
	problem := writeFile(t, dir, "stem.txt", "Solve 2x = 8")

	tests := []struct {
		name      string
		qType     string
		problem   string
		wantKind  domain.QuestionType
		wantSteps int
		wantCode  string
	}{
		{name: "calculation", qType: domain.LabelCalculation, problem: problem, wantKind: domain.QuestionCalculation, wantSteps: 1},
		{name: "concept without stem", qType: domain.LabelConcept, wantKind: domain.QuestionConcept},
		{name: "programming", qType: "programming", problem: problem, wantKind: domain.QuestionProgramming, wantCode: "x = 4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := unitFromFiles(tt.qType, tt.problem, answer)
			require.NoError(t, err)
			assert.Equal(t, "q7.txt", unit.QID)
			assert.Equal(t, tt.wantKind, unit.Kind())
			assert.Len(t, unit.Steps, tt.wantSteps)
			assert.Equal(t, tt.wantCode, unit.Code)
			if tt.problem != "" {
				assert.Equal(t, "Solve 2x = 8", unit.Stem)
			}
		})
	}

	_, err := unitFromFiles(domain.LabelConcept, "", filepath.Join(dir, "absent.txt"))
	require.Error(t, err)
}

// TestWriteCorrection prints readable JSON without HTML escaping.
func TestWriteCorrection(t *testing.T) {
	var buf bytes.Buffer
	c := domain.Correction{QID: "q1", Type: domain.LabelConcept, Score: 6, MaxScore: 10, Confidence: 0.9, Comment: "a < b"}
	c.Normalize()
	require.NoError(t, writeCorrection(&buf, c))

	assert.Contains(t, buf.String(), "a < b")
	var got domain.Correction
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, c, got)
}
