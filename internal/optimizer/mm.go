package optimizer

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ZanzyTHEbar/btrank/internal/comparison"
)

// MM runs Hunter's minorization-maximization updates. Every item starts
// with Prior virtual wins and Prior virtual losses against every other
// item, which keeps undefeated and winless items finite.
//
// The result is centred so that the log-strengths sum to zero.
type MM struct {
	cfg Config
}

// NewMM returns an MM optimizer for cfg
func NewMM(cfg Config) (*MM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MM{cfg: cfg}, nil
}

func (o *MM) Method() string { return MethodMM }

// Config returns the settings the optimizer runs with
func (o *MM) Config() Config { return o.cfg }

func (o *MM) Optimize(ctx context.Context, n int, pairs []comparison.Pair) ([]float64, error) {
	if err := checkInput(n, pairs); err != nil {
		return nil, err
	}
	if n == 1 {
		return []float64{0}, nil
	}

	prior := o.cfg.Prior
	beat := mat.NewDense(n, n, nil)
	for _, p := range pairs {
		if p.Winner != p.Loser {
			beat.Set(p.Winner, p.Loser, beat.At(p.Winner, p.Loser)+1)
		}
	}

	wins := make([]float64, n)
	for i := range wins {
		wins[i] = prior*float64(n-1) + floats.Sum(beat.RawRowView(i))
	}

	score := make([]float64, n)
	for i := range score {
		score[i] = 1
	}

	for iter := 0; iter < o.cfg.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		delta := 0.0
		for i := range score {
			denom := 0.0
			for j := range score {
				if i == j {
					continue
				}
				games := beat.At(i, j) + beat.At(j, i) + 2*prior
				denom += games / (score[i] + score[j])
			}
			next := wins[i] / denom
			delta = math.Max(delta, math.Abs(math.Log(next)-math.Log(score[i])))
			score[i] = next
		}
		normalise(score)

		if delta < o.cfg.Tol {
			break
		}
	}

	theta := make([]float64, n)
	for i, s := range score {
		theta[i] = math.Log(s)
	}
	return theta, nil
}

// normalise rescales s so its geometric mean is one.
func normalise(s []float64) {
	logMean := 0.0
	for _, v := range s {
		logMean += math.Log(v)
	}
	logMean /= float64(len(s))
	floats.Scale(math.Exp(-logMean), s)
}
