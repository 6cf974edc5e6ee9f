package features

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/ZanzyTHEbar/btrank/internal/comparison"
	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
	"github.com/ZanzyTHEbar/btrank/internal/optimizer"
)

type fitOptions struct {
	optimizer optimizer.Optimizer
	logger    *slog.Logger
}

// FitOption configures a single fit
type FitOption func(*fitOptions)

// WithOptimizer replaces the default Newton optimizer
func WithOptimizer(opt optimizer.Optimizer) FitOption {
	return func(o *fitOptions) {
		if opt != nil {
			o.optimizer = opt
		}
	}
}

// WithLogger sets the logger fit progress is reported to
func WithLogger(logger *slog.Logger) FitOption {
	return func(o *fitOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildFitOptions(opts []FitOption) fitOptions {
	o := fitOptions{
		optimizer: optimizer.Default(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ItemKeyForSurveyName resolves a comparison-log label to an item key. It
// is the comparison.ResolveFunc the set parses logs with.
func (s *FeatureSet) ItemKeyForSurveyName(label string) (int, error) {
	f, ok := s.BySurveyName(label)
	if !ok {
		return 0, apperrors.NewNotFoundError("survey_name", label)
	}
	return f.ItemKey, nil
}

// ParseComparisons reads a comparison log against the current survey
// labels without fitting.
func (s *FeatureSet) ParseComparisons(r io.Reader) ([]comparison.Pair, error) {
	return comparison.Parse(r, s.ItemKeyForSurveyName)
}

// Fit reads the comparison log at path and fits every feature's strength.
func (s *FeatureSet) Fit(ctx context.Context, path string, opts ...FitOption) error {
	pairs, err := comparison.ParseFile(path, s.ItemKeyForSurveyName)
	if err != nil {
		return err
	}
	return s.FitPairs(ctx, pairs, opts...)
}

// FitReader fits against a comparison log read from r. The whole log is
// parsed before any strength is written, so a bad line leaves every
// strength as it was.
func (s *FeatureSet) FitReader(ctx context.Context, r io.Reader, opts ...FitOption) error {
	pairs, err := s.ParseComparisons(r)
	if err != nil {
		return err
	}
	return s.FitPairs(ctx, pairs, opts...)
}

// FitPairs runs the optimizer over already resolved pairs and writes
// exp(log-strength) into the feature with the matching item key.
func (s *FeatureSet) FitPairs(ctx context.Context, pairs []comparison.Pair, opts ...FitOption) error {
	o := buildFitOptions(opts)
	start := time.Now()

	logStrengths, err := o.optimizer.Optimize(ctx, len(s.features), pairs)
	if err != nil {
		o.logger.Warn("Fit failed",
			"method", o.optimizer.Method(),
			"features", len(s.features),
			"comparisons", len(pairs),
			"error", err)
		return fmt.Errorf("optimizer %s: %w", o.optimizer.Method(), err)
	}
	if len(logStrengths) != len(s.features) {
		return apperrors.NewInternalError(
			fmt.Sprintf("optimizer returned %d strengths for %d features", len(logStrengths), len(s.features)),
			nil,
		)
	}

	for key, ls := range logStrengths {
		f, ok := s.ByItemKey(key)
		if !ok {
			return apperrors.NewNotFoundError("item_key", fmt.Sprint(key))
		}
		f.Strength = math.Exp(ls)
	}

	o.logger.Info("Feature set fitted",
		"method", o.optimizer.Method(),
		"features", len(s.features),
		"comparisons", len(pairs),
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}
