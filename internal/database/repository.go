package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
	"github.com/ZanzyTHEbar/btrank/internal/resilience"
)

// DefaultListLimit caps ListRuns when the caller passes a non-positive limit
const DefaultListLimit = 50

// Repository handles fit run persistence
type Repository struct {
	db    *DB
	retry resilience.RetryConfig
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	retry := resilience.DefaultRetryConfig()
	retry.Retryable = isBusy
	return &Repository{db: db, retry: retry}
}

// isBusy reports whether err is sqlite lock contention
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// SaveRun stores a run and its strengths in one transaction, retrying
// while the database is locked by another writer.
func (r *Repository) SaveRun(ctx context.Context, run *FitRun) error {
	return resilience.RetryWithConfig(ctx, r.retry, func() error {
		return r.saveRun(ctx, run)
	})
}

func (r *Repository) saveRun(ctx context.Context, run *FitRun) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fit_runs (id, source, method, alpha, feature_count, comparison_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Source, run.Method, run.Alpha, run.FeatureCount, run.ComparisonCount, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fit_strengths (run_id, item_key, feature_name, survey_name, strength)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare strength insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range run.Strengths {
		if _, err := stmt.ExecContext(ctx, run.ID, s.ItemKey, s.FeatureName, s.SurveyName, s.Strength); err != nil {
			return fmt.Errorf("failed to insert strength for item %d: %w", s.ItemKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun loads a run with its strengths ordered by item key
func (r *Repository) GetRun(ctx context.Context, id string) (*FitRun, error) {
	var run FitRun
	err := r.db.QueryRowContext(ctx, `
		SELECT id, source, method, alpha, feature_count, comparison_count, created_at
		FROM fit_runs
		WHERE id = ?
	`, id).Scan(
		&run.ID, &run.Source, &run.Method, &run.Alpha,
		&run.FeatureCount, &run.ComparisonCount, &run.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT item_key, feature_name, survey_name, strength
		FROM fit_strengths
		WHERE run_id = ?
		ORDER BY item_key
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query strengths: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s StrengthRecord
		if err := rows.Scan(&s.ItemKey, &s.FeatureName, &s.SurveyName, &s.Strength); err != nil {
			return nil, fmt.Errorf("failed to scan strength: %w", err)
		}
		run.Strengths = append(run.Strengths, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read strengths: %w", err)
	}

	return &run, nil
}

// ListRuns returns run summaries, newest first, without strengths
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]FitRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, method, alpha, feature_count, comparison_count, created_at
		FROM fit_runs
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]FitRun, 0)
	for rows.Next() {
		var run FitRun
		if err := rows.Scan(
			&run.ID, &run.Source, &run.Method, &run.Alpha,
			&run.FeatureCount, &run.ComparisonCount, &run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run; its strengths cascade
func (r *Repository) DeleteRun(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM fit_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("run", id)
	}
	return nil
}
