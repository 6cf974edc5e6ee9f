package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/ZanzyTHEbar/btrank/internal/comparison"
)

// Newton maximises the penalised log-likelihood
//
//	Σ log σ(θ_w − θ_l) − α‖θ‖²
//
// by handing its negation, gradient and Hessian to gonum's Newton method
// with Armijo backtracking. The penalty makes the objective strictly
// concave, so the optimum is unique.
type Newton struct {
	cfg Config
}

// NewNewton returns a Newton optimizer for cfg
func NewNewton(cfg Config) (*Newton, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Newton{cfg: cfg}, nil
}

func (o *Newton) Method() string { return MethodNewton }

// Config returns the settings the optimizer runs with
func (o *Newton) Config() Config { return o.cfg }

func (o *Newton) Optimize(ctx context.Context, n int, pairs []comparison.Pair) ([]float64, error) {
	if err := checkInput(n, pairs); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 { return o.objective(theta, pairs) },
		Grad: func(grad, theta []float64) { o.gradient(theta, pairs, grad) },
		Hess: func(hess *mat.SymDense, theta []float64) { o.hessian(theta, pairs, hess) },
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: o.cfg.Tol,
		MajorIterations:   o.cfg.MaxIter,
	}
	method := &optimize.Newton{Linesearcher: &optimize.Backtracking{}}

	result, err := optimize.Minimize(problem, make([]float64, n), settings, method)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		// The line search stalls once the objective is flat to machine
		// precision; the best location found so far is the estimate.
		if result == nil || !stalled(err) {
			return nil, fmt.Errorf("newton: %w", err)
		}
	}

	return result.X, nil
}

func stalled(err error) bool {
	return errors.Is(err, optimize.ErrLinesearcherFailure) || errors.Is(err, optimize.ErrNoProgress)
}

// objective is the negative penalised log-likelihood.
func (o *Newton) objective(theta []float64, pairs []comparison.Pair) float64 {
	total := 0.0
	for _, p := range pairs {
		total += logOnePlusExp(-(theta[p.Winner] - theta[p.Loser]))
	}
	for _, v := range theta {
		total += o.cfg.Alpha * v * v
	}
	return total
}

func (o *Newton) gradient(theta []float64, pairs []comparison.Pair, grad []float64) {
	for i, v := range theta {
		grad[i] = 2 * o.cfg.Alpha * v
	}
	for _, p := range pairs {
		// probability that the observed loser would have won
		z := sigmoid(theta[p.Loser] - theta[p.Winner])
		grad[p.Winner] -= z
		grad[p.Loser] += z
	}
}

func (o *Newton) hessian(theta []float64, pairs []comparison.Pair, hess *mat.SymDense) {
	n := len(theta)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			hess.SetSym(i, j, 0)
		}
		hess.SetSym(i, i, 2*o.cfg.Alpha)
	}
	for _, p := range pairs {
		i, j := p.Winner, p.Loser
		if i == j {
			continue
		}
		s := sigmoid(theta[i] - theta[j])
		w := s * (1 - s)
		hess.SetSym(i, i, hess.At(i, i)+w)
		hess.SetSym(j, j, hess.At(j, j)+w)
		hess.SetSym(i, j, hess.At(i, j)-w)
	}
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// logOnePlusExp computes log(1 + exp(x)) without overflow.
func logOnePlusExp(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}
