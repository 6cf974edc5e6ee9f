package comparison

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolverFor(labels ...string) ResolveFunc {
	return func(label string) (int, error) {
		for i, l := range labels {
			if l == label {
				return i, nil
			}
		}
		return 0, apperrors.NewNotFoundError("survey_name", label)
	}
}

func TestParseLine(t *testing.T) {
	resolve := resolverFor("A", "B", "C")

	tests := []struct {
		name        string
		line        string
		expected    Pair
		expectedErr func(error) bool
	}{
		{
			name:     "simple comparison",
			line:     "A > B",
			expected: Pair{Winner: 0, Loser: 1},
		},
		{
			name:     "surrounding whitespace is trimmed",
			line:     "  C\t>   A  \r",
			expected: Pair{Winner: 2, Loser: 0},
		},
		{
			name:     "no whitespace around separator",
			line:     "B>C",
			expected: Pair{Winner: 1, Loser: 2},
		},
		{
			name:     "text after a second separator is ignored",
			line:     "A > B > C",
			expected: Pair{Winner: 0, Loser: 1},
		},
		{
			name:        "missing separator",
			line:        "A beats B",
			expectedErr: apperrors.IsMalformed,
		},
		{
			name:        "blank line",
			line:        "",
			expectedErr: apperrors.IsMalformed,
		},
		{
			name:        "unknown winner",
			line:        "D > A",
			expectedErr: apperrors.IsNotFound,
		},
		{
			name:        "unknown loser",
			line:        "A > a",
			expectedErr: apperrors.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := ParseLine(tt.line, resolve)
			if tt.expectedErr != nil {
				require.Error(t, err)
				assert.True(t, tt.expectedErr(err), "unexpected error kind: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, pair)
		})
	}
}

func TestParseKeepsOrderAndDuplicates(t *testing.T) {
	log := "A > B\nB > C\nA > B\nC > A\n"

	pairs, err := Parse(strings.NewReader(log), resolverFor("A", "B", "C"))
	require.NoError(t, err)

	assert.Equal(t, []Pair{
		{Winner: 0, Loser: 1},
		{Winner: 1, Loser: 2},
		{Winner: 0, Loser: 1},
		{Winner: 2, Loser: 0},
	}, pairs)
}

func TestParseEmptyInput(t *testing.T) {
	pairs, err := Parse(strings.NewReader(""), resolverFor("A"))
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestParseReportsLineNumber(t *testing.T) {
	log := "A > B\nB > Z\nA > C\n"

	pairs, err := Parse(strings.NewReader(log), resolverFor("A", "B", "C"))
	require.Error(t, err)
	assert.Nil(t, pairs)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "survey.txt")
	require.NoError(t, os.WriteFile(path, []byte("age > income\nincome > age\n"), 0o644))

	pairs, err := ParseFile(path, resolverFor("age", "income"))
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Winner: 0, Loser: 1}, {Winner: 1, Loser: 0}}, pairs)

	_, err = ParseFile(filepath.Join(dir, "missing.txt"), resolverFor("age"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = ParseFile(path, resolverFor("age"))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), path)
	assert.Contains(t, err.Error(), "line 1")
}

func TestPairString(t *testing.T) {
	assert.Equal(t, "3 > 1", Pair{Winner: 3, Loser: 1}.String())
}
