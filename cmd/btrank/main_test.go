package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/btrank/internal/database"
	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
	"github.com/ZanzyTHEbar/btrank/internal/report"
)

const comparisonLog = "Age > Price\nAge > Brand\nPrice > Brand\nAge > Price\n"

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func commonArgs(t *testing.T, dir string) []string {
	t.Helper()
	return []string{
		"--env-file", writeFile(t, dir, "btrank.env", ""),
		"--data-dir", filepath.Join(dir, "data"),
		"--log-level", "error",
	}
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "btrank version "+Version)
}

func TestFitRankedJSON(t *testing.T) {
	dir := t.TempDir()
	headerPath := writeFile(t, dir, "survey.csv", "Age,Price,Brand\n1,2,3\n")
	logPath := writeFile(t, dir, "answers.txt", comparisonLog)

	args := append(commonArgs(t, dir), "fit",
		"--features", headerPath,
		"--comparisons", logPath,
		"--ranked", "--format", "json")
	out, _, err := execute(t, args...)
	require.NoError(t, err)

	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Features, 3)
	assert.Equal(t, "newton", doc.Method)
	assert.Equal(t, "Age", doc.Features[0].FeatureName)
	assert.Equal(t, "Brand", doc.Features[2].FeatureName)
	for _, f := range doc.Features {
		assert.Greater(t, f.Strength, 0.0)
	}
}

func TestFitWithExcludeAndRename(t *testing.T) {
	dir := t.TempDir()
	logPath := writeFile(t, dir, "answers.txt", "age > Brand\n")

	args := append(commonArgs(t, dir), "fit",
		"--header", "Color,Age,Price,Brand",
		"--exclude", "0,Price",
		"--rename", "Age=age",
		"--comparisons", logPath,
		"--method", "mm",
		"--format", "csv")
	out, _, err := execute(t, args...)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "item_key,feature_name,survey_name,strength", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0,Age,age,"))
	assert.True(t, strings.HasPrefix(lines[2], "1,Brand,Brand,"))
}

func TestFitErrors(t *testing.T) {
	dir := t.TempDir()
	logPath := writeFile(t, dir, "answers.txt", comparisonLog)
	badLog := writeFile(t, dir, "bad.txt", "Age Price\n")
	unknownLog := writeFile(t, dir, "unknown.txt", "Age > Weight\n")

	tests := []struct {
		name  string
		args  []string
		check func(error) bool
	}{
		{
			name:  "malformed comparison line",
			args:  []string{"fit", "--header", "Age,Price,Brand", "--comparisons", badLog},
			check: apperrors.IsMalformed,
		},
		{
			name:  "unknown survey label",
			args:  []string{"fit", "--header", "Age,Price,Brand", "--comparisons", unknownLog},
			check: apperrors.IsNotFound,
		},
		{
			name:  "exclude index out of range",
			args:  []string{"fit", "--header", "Age,Price", "--exclude", "7", "--comparisons", logPath},
			check: apperrors.IsOutOfRange,
		},
		{
			name:  "bad rename flag",
			args:  []string{"fit", "--header", "Age,Price", "--rename", "Age", "--comparisons", logPath},
			check: apperrors.IsValidation,
		},
		{
			name:  "unknown method",
			args:  []string{"fit", "--header", "Age,Price", "--method", "sgd", "--comparisons", logPath},
			check: apperrors.IsValidation,
		},
		{
			name:  "non-positive alpha",
			args:  []string{"fit", "--header", "Age,Price", "--alpha", "0", "--comparisons", logPath},
			check: apperrors.IsValidation,
		},
		{
			name:  "unknown format",
			args:  []string{"fit", "--header", "Age,Price", "--format", "xml", "--comparisons", logPath},
			check: apperrors.IsValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, append(commonArgs(t, dir), tt.args...)...)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestMissingEnvFileFails(t *testing.T) {
	dir := t.TempDir()
	logPath := writeFile(t, dir, "answers.txt", comparisonLog)

	_, _, err := execute(t, "--env-file", filepath.Join(dir, "missing.env"),
		"fit", "--header", "Age,Price", "--comparisons", logPath)
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryConfiguration, apperrors.CategoryOf(err))
}

func TestFitRequiresFeatureSource(t *testing.T) {
	dir := t.TempDir()
	logPath := writeFile(t, dir, "answers.txt", comparisonLog)

	_, _, err := execute(t, append(commonArgs(t, dir), "fit", "--comparisons", logPath)...)
	assert.Error(t, err)
}

func TestSaveListShowDelete(t *testing.T) {
	dir := t.TempDir()
	logPath := writeFile(t, dir, "answers.txt", comparisonLog)

	_, stderr, err := execute(t, append(commonArgs(t, dir), "fit",
		"--header", "Age,Price,Brand", "--comparisons", logPath, "--save")...)
	require.NoError(t, err)
	require.Contains(t, stderr, "saved run ")

	out, _, err := execute(t, append(commonArgs(t, dir), "runs", "list", "--format", "json")...)
	require.NoError(t, err)
	var runs []database.FitRun
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "inline", runs[0].Source)
	assert.Equal(t, 4, runs[0].ComparisonCount)

	out, _, err = execute(t, append(commonArgs(t, dir), "runs", "show", runs[0].ID, "--ranked")...)
	require.NoError(t, err)
	assert.Contains(t, out, "1. Age/Age - 0 : ")

	out, _, err = execute(t, append(commonArgs(t, dir), "runs", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, runs[0].ID)

	_, _, err = execute(t, append(commonArgs(t, dir), "runs", "delete", runs[0].ID)...)
	require.NoError(t, err)

	_, _, err = execute(t, append(commonArgs(t, dir), "runs", "show", runs[0].ID)...)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
