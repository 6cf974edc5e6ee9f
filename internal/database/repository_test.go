package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
	"github.com/ZanzyTHEbar/btrank/internal/features"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db)
}

func fittedSet(t *testing.T) *features.FeatureSet {
	t.Helper()
	set, err := features.New([]string{"Age", "Price", "Brand"}, nil)
	require.NoError(t, err)
	require.NoError(t, set.Rename("Age", "age"))
	for i, f := range set.Features() {
		f.Strength = float64(3 - i)
	}
	return set
}

func TestNewDBCreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	db, err := NewDB(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(db.Path())
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), db.Path())
}

func TestNewFitRun(t *testing.T) {
	run := NewFitRun(fittedSet(t), "api", "newton", 0.0001, 7)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 3, run.FeatureCount)
	assert.Equal(t, 7, run.ComparisonCount)
	require.Len(t, run.Strengths, 3)
	assert.Equal(t, StrengthRecord{ItemKey: 0, FeatureName: "Age", SurveyName: "age", Strength: 3}, run.Strengths[0])

	other := NewFitRun(fittedSet(t), "api", "newton", 0.0001, 7)
	assert.NotEqual(t, run.ID, other.ID)
}

func TestSaveAndGetRun(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	run := NewFitRun(fittedSet(t), "cli", "mm", 0.5, 4)
	require.NoError(t, repo.SaveRun(ctx, run))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "cli", got.Source)
	assert.Equal(t, "mm", got.Method)
	assert.Equal(t, 0.5, got.Alpha)
	assert.Equal(t, 4, got.ComparisonCount)
	assert.Equal(t, run.Strengths, got.Strengths)
	assert.WithinDuration(t, run.CreatedAt, got.CreatedAt, time.Second)

	set, err := got.FeatureSet()
	require.NoError(t, err)
	f, ok := set.BySurveyName("age")
	require.True(t, ok)
	assert.Equal(t, 3.0, f.Strength)
	assert.True(t, set.IsFit())
}

func TestGetRunNotFound(t *testing.T) {
	repo := setupRepository(t)

	_, err := repo.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestListRunsNewestFirst(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		run := NewFitRun(fittedSet(t), "api", "newton", 0.0001, i)
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.SaveRun(ctx, run))
		ids = append(ids, run.ID)
	}

	runs, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[2].ID)
	assert.Empty(t, runs[0].Strengths)

	limited, err := repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDeleteRun(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	run := NewFitRun(fittedSet(t), "api", "newton", 0.0001, 1)
	require.NoError(t, repo.SaveRun(ctx, run))
	require.NoError(t, repo.DeleteRun(ctx, run.ID))

	_, err := repo.GetRun(ctx, run.ID)
	assert.True(t, apperrors.IsNotFound(err))

	var orphaned int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM fit_strengths WHERE run_id = ?`, run.ID).Scan(&orphaned))
	assert.Zero(t, orphaned)

	err = repo.DeleteRun(ctx, run.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestIsBusy(t *testing.T) {
	assert.True(t, isBusy(fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrBusy})))
	assert.True(t, isBusy(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.False(t, isBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, isBusy(errors.New("other")))
}

func TestSaveRunDuplicateIDIsNotRetried(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	run := NewFitRun(fittedSet(t), "api", "newton", 0.0001, 1)
	require.NoError(t, repo.SaveRun(ctx, run))

	err := repo.SaveRun(ctx, run)
	require.Error(t, err)

	var sqliteErr sqlite3.Error
	require.True(t, errors.As(err, &sqliteErr))
	assert.Equal(t, sqlite3.ErrConstraint, sqliteErr.Code)
	assert.False(t, isBusy(err))
}
