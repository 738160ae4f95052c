// Package vb implements variational Bayesian fitters for linear Gaussian
// state-space models. The posterior is a mean-field product of Gamma
// precision factors, Gaussian matrix factors and Gaussian chains; the
// fitters ascend the factors coordinate-wise, smoothing each chain with
// a Kalman filter run under the expected values of the other factors.
// The second-moment mass those expectations leave out enters the
// smoothing passes as per-step Gaussian information potentials, so each
// chain update is the exact coordinate step.
package vb

import (
	"io"
	"log/slog"

	"github.com/vbayes/lgssm"
	"github.com/vbayes/lgssm/estimate"
	"github.com/vbayes/lgssm/kalman"
	"github.com/vbayes/lgssm/matrix"
	"github.com/vbayes/lgssm/smooth"
	"gonum.org/v1/gonum/mat"
)

// Config configures a variational fitter.
type Config struct {
	// MaxIter is the number of coordinate update sweeps
	MaxIter int
	// A0 is the Gamma hyperprior shape
	A0 float64
	// B0 is the Gamma hyperprior rate
	B0 float64
	// Seed drives the random factor initializations
	Seed uint64
	// Logger receives per-update debug logs; nil disables logging
	Logger *slog.Logger
}

// DefaultConfig returns the configuration the demo uses: 50 sweeps and
// flat Gamma(1e-5, 1e-5) hyperpriors.
func DefaultConfig() Config {
	return Config{
		MaxIter: 50,
		A0:      1e-5,
		B0:      1e-5,
		Seed:    1,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxIter <= 0 {
		c.MaxIter = def.MaxIter
	}
	if c.A0 <= 0 {
		c.A0 = def.A0
	}
	if c.B0 <= 0 {
		c.B0 = def.B0
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Trace holds the per-iteration fit scores: the expected log density of
// the observed entries under the current posterior.
type Trace []float64

// smoothChain runs the forward filter and the backward smoother over
// the first steps columns of y.
func smoothChain(flt kalman.Filter, s smooth.Smoother, y *mat.Dense, steps int) ([]*estimate.Smoothed, error) {
	fwd, err := flt.Filter(y, steps)
	if err != nil {
		return nil, err
	}

	return s.Smooth(fwd)
}

// secondMoment returns E[x x'] = cov + val*val'.
func secondMoment(e lgssm.Estimate) *mat.SymDense {
	v := e.Val()

	m := mat.NewSymDense(v.Len(), nil)
	m.CopySym(e.Cov())
	m.SymRankOne(m, 1.0, v)

	return m
}

// crossMoment returns E[x_n x_{n-1}'] = CrossCov + val_n*val_{n-1}'.
func crossMoment(cur *estimate.Smoothed, prev lgssm.Estimate) *mat.Dense {
	m := &mat.Dense{}
	m.CloneFrom(cur.CrossCov())
	matrix.AddOuter(m, cur.Val(), prev.Val())

	return m
}

// eyeSym returns the n x n identity covariance scaled by v.
func eyeSym(n int, v float64) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, v)
	}

	return m
}

// traceProd returns tr(a*b) for symmetric a and b of equal size.
func traceProd(a, b mat.Symmetric) float64 {
	n := a.SymmetricDim()

	var sum float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum += a.At(i, j) * b.At(i, j)
		}
	}

	return sum
}

// maskCol returns the n-th column of the visibility mask, or nil when the
// mask marks everything visible.
func maskCol(mask [][]bool, n int) []bool {
	if mask == nil {
		return nil
	}

	col := make([]bool, len(mask))
	for i := range mask {
		col[i] = mask[i][n]
	}

	return col
}
