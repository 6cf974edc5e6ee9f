// Package optimizer estimates Bradley-Terry log-strengths from pairwise
// outcomes. Under the model the probability that item i beats item j is
//
//	exp(θ_i) / (exp(θ_i) + exp(θ_j))
//
// and every Optimizer returns θ, one value per item index.
package optimizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/btrank/internal/comparison"
	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
)

const (
	MethodNewton = "newton"
	MethodMM     = "mm"

	// DefaultAlpha is the L2 penalty that keeps estimates finite when an
	// item never wins or never loses.
	DefaultAlpha = 0.0001
)

// Optimizer turns n items and their observed pairs into log-strengths.
type Optimizer interface {
	Optimize(ctx context.Context, n int, pairs []comparison.Pair) ([]float64, error)
	Method() string
}

// Config tunes the estimators. Alpha is used by Newton, Prior by MM.
type Config struct {
	Alpha   float64 `json:"alpha" yaml:"alpha"`
	MaxIter int     `json:"max_iter" yaml:"max_iter"`
	Tol     float64 `json:"tol" yaml:"tol"`
	Prior   float64 `json:"prior" yaml:"prior"`
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Alpha:   DefaultAlpha,
		MaxIter: 200,
		Tol:     1e-9,
		Prior:   1,
	}
}

// Validate checks that every knob is usable
func (c Config) Validate() error {
	problems := map[string]string{}
	if c.Alpha <= 0 {
		problems["alpha"] = fmt.Sprintf("must be positive, got %g", c.Alpha)
	}
	if c.MaxIter <= 0 {
		problems["max_iter"] = fmt.Sprintf("must be positive, got %d", c.MaxIter)
	}
	if c.Tol <= 0 {
		problems["tol"] = fmt.Sprintf("must be positive, got %g", c.Tol)
	}
	if c.Prior <= 0 {
		problems["prior"] = fmt.Sprintf("must be positive, got %g", c.Prior)
	}
	if len(problems) > 0 {
		return apperrors.NewValidationErrorWithMap(problems)
	}
	return nil
}

// New builds the optimizer registered under method.
func New(method string, cfg Config) (Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(method) {
	case "", MethodNewton:
		return &Newton{cfg: cfg}, nil
	case MethodMM:
		return &MM{cfg: cfg}, nil
	default:
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("unknown optimizer method %q", method),
			[]string{MethodNewton, MethodMM},
		)
	}
}

// Default returns a Newton optimizer with DefaultConfig.
func Default() Optimizer {
	return &Newton{cfg: DefaultConfig()}
}

// checkInput enforces n > 0 and that every pair indexes into [0, n).
func checkInput(n int, pairs []comparison.Pair) error {
	if n <= 0 {
		return apperrors.NewValidationError(fmt.Sprintf("item count must be positive, got %d", n))
	}
	for i, p := range pairs {
		if p.Winner < 0 || p.Winner >= n {
			return fmt.Errorf("pair %d winner: %w", i, apperrors.NewOutOfRangeError("item", p.Winner, n))
		}
		if p.Loser < 0 || p.Loser >= n {
			return fmt.Errorf("pair %d loser: %w", i, apperrors.NewOutOfRangeError("item", p.Loser, n))
		}
	}
	return nil
}
