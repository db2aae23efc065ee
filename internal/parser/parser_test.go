package parser_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-grader/internal/parser"
)

type scored struct {
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score" validate:"gte=0"`
	Comment  string  `json:"comment"`
}

type nested struct {
	Score  float64 `json:"score"`
	Detail struct {
		Steps []int `json:"steps"`
		Last  struct {
			StepNo int `json:"step_no"`
		} `json:"last"`
	} `json:"detail"`
}

type recordingSink struct {
	original, repaired string
	err                error
	calls              int
}

func (r *recordingSink) Record(original, repaired string, err error) {
	r.original, r.repaired, r.err = original, repaired, err
	r.calls++
}

// TestExtractSpan covers object, array, truncated and absent spans.
func TestExtractSpan(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "object inside noise", raw: "here you go: {\"a\": 1} thanks", want: `{"a": 1}`},
		{name: "greedy across lines", raw: "```json\n{\"a\": {\"b\": 2}\n}\n```", want: "{\"a\": {\"b\": 2}\n}"},
		{name: "array when no object", raw: "result [1, 2, 3] end", want: "[1, 2, 3]"},
		{name: "object preferred over earlier array", raw: "[x] {\"a\": 1}", want: `{"a": 1}`},
		{name: "unclosed tail", raw: "reply: {\"score\": 7, \"comment\": \"cut", want: "{\"score\": 7, \"comment\": \"cut"},
		{name: "no span", raw: "I cannot grade this answer.", wantErr: parser.ErrNoStructuredSpan},
		{name: "empty", raw: "", wantErr: parser.ErrNoStructuredSpan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parser.ExtractSpan(tt.raw)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestParse_Tiers verifies each fixture is recovered by exactly the expected tier.
func TestParse_Tiers(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantTier  parser.Tier
		wantScore float64
		wantNote  string
	}{
		{
			name:      "direct",
			raw:       `noise {"score": 7, "max_score": 10} noise`,
			wantTier:  parser.TierDirect,
			wantScore: 7,
		},
		{
			name:      "invalid escape from latex",
			raw:       `{"score": 6, "max_score": 10, "comment": "uses \frac{a}{b} and \int"}`,
			wantTier:  parser.TierEscape,
			wantScore: 6,
			wantNote:  `uses \frac{a}{b} and \int`,
		},
		{
			name:      "truncated inside string",
			raw:       `{"score": 4, "max_score": 10, "comment": "partially corr`,
			wantTier:  parser.TierTruncation,
			wantScore: 4,
			wantNote:  "partially corr",
		},
		{
			name:      "truncated after separator",
			raw:       `{"score": 3, "max_score": 10,`,
			wantTier:  parser.TierTruncation,
			wantScore: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, attempt, err := parser.Parse[scored](tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTier, attempt.Tier)
			assert.InDelta(t, tt.wantScore, got.Score, 1e-9)
			assert.Equal(t, tt.wantNote, got.Comment)
		})
	}
}

// TestParse_MissingFinalClosers recovers a nested value missing its final
// two closing braces at the truncation tier.
func TestParse_MissingFinalClosers(t *testing.T) {
	raw := `{"score": 8, "detail": {"steps": [1, 2], "last": {"step_no": 2}`

	got, attempt, err := parser.Parse[nested](raw)
	require.NoError(t, err)
	assert.Equal(t, parser.TierTruncation, attempt.Tier)
	assert.Equal(t, raw+"}}", attempt.Repaired)
	assert.InDelta(t, 8, got.Score, 1e-9)
	assert.Equal(t, []int{1, 2}, got.Detail.Steps)
	assert.Equal(t, 2, got.Detail.Last.StepNo)
}

// TestParse_Unrecoverable returns UnrecoverableError and reports both texts
// to the sink.
func TestParse_Unrecoverable(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind parser.Kind
	}{
		{name: "syntax error", raw: `{"score": seven}`, wantKind: parser.KindSyntax},
		{name: "schema mismatch", raw: `{"score": "high"}`, wantKind: parser.KindSchema},
		{name: "validation tag", raw: `{"score": 1, "max_score": -3}`, wantKind: parser.KindSchema},
		{name: "escape repair insufficient", raw: `{"comment": "\q", "score": }`, wantKind: parser.KindSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			_, attempt, err := parser.Parse[scored](tt.raw, parser.WithSink(sink))
			require.Error(t, err)

			var ue *parser.UnrecoverableError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tt.wantKind, ue.Kind)
			assert.Equal(t, tt.raw, ue.Original)
			assert.NotEmpty(t, ue.Repaired)
			assert.Equal(t, parser.TierNone, attempt.Tier)

			assert.Equal(t, 1, sink.calls)
			assert.Equal(t, ue.Original, sink.original)
			assert.Equal(t, ue.Repaired, sink.repaired)
		})
	}
}

// TestParse_NoSpan fails fast without touching the sink.
func TestParse_NoSpan(t *testing.T) {
	sink := &recordingSink{}
	_, attempt, err := parser.Parse[scored]("no json here", parser.WithSink(sink))
	require.ErrorIs(t, err, parser.ErrNoStructuredSpan)
	assert.Equal(t, parser.KindNoSpan, attempt.Kind)
	assert.Zero(t, sink.calls)

	var ue *parser.UnrecoverableError
	assert.False(t, errors.As(err, &ue))
}

// TestParse_Array decodes top-level arrays.
func TestParse_Array(t *testing.T) {
	got, attempt, err := parser.Parse[[]int]("values: [1, 2, 3]")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, parser.TierDirect, attempt.Tier)
}

// TestDirSink writes both texts for offline diagnosis.
func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "diag")
	sink, err := parser.NewDirSink(dir)
	require.NoError(t, err)

	_, _, err = parser.Parse[scored](`{"score": nope}`, parser.WithSink(sink))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names[0]+names[1], "-original.json")
	assert.Contains(t, names[0]+names[1], "-repaired.json")
}
