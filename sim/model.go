package sim

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/vbayes/lgssm"
	"github.com/vbayes/lgssm/noise"
	"github.com/vbayes/lgssm/rnd"
	"gonum.org/v1/gonum/mat"
)

// InitCond implements lgssm.InitCond
type InitCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

// NewInitCond creates new InitCond and returns it
func NewInitCond(state mat.Vector, cov mat.Symmetric) *InitCond {
	s := &mat.VecDense{}
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &InitCond{
		state: s,
		cov:   c,
	}
}

// State returns initial state
func (c *InitCond) State() mat.Vector {
	state := mat.NewVecDense(c.state.Len(), nil)
	state.CloneFromVec(c.state)

	return state
}

// Cov returns initial covariance
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)

	return cov
}

// latent dimension of the generative model
const driftDim = 3

// Drifting is a generative linear Gaussian state-space model whose
// dynamics are a rotation of the first two latent axes with a period
// drifting linearly from 5 to 1 steps over the trajectory. The latent
// state is observed through a random mixing matrix under Gaussian noise.
type Drifting struct {
	// m is the number of observed series
	m int
	// n is the trajectory length
	n int
	// c is the m x 3 mixing matrix
	c *mat.Dense
	// a are the n-1 per-step rotation matrices
	a []*mat.Dense
	// q is unit state innovation noise
	q lgssm.Noise
	// r is observation noise with standard deviation 3
	r lgssm.Noise
	// src drives the initial state draw
	src rand.Source
}

// NewDrifting creates a drifting-dynamics model for m observed series
// over n steps, drawing the mixing matrix from src.
// It returns error if the dimensions are too small to drift.
func NewDrifting(m, n int, src rand.Source) (*Drifting, error) {
	if m <= 0 || n < 2 {
		return nil, fmt.Errorf("invalid model dimensions: [%d x %d]", m, n)
	}

	c, err := rnd.Randn(m, driftDim, src)
	if err != nil {
		return nil, err
	}

	// rotation period drifts linearly from 5 to 1
	a := make([]*mat.Dense, n-1)
	for i := range a {
		l := 5.0
		if n > 2 {
			l = 5.0 - 4.0*float64(i)/float64(n-2)
		}
		w := 1.0 / l
		a[i] = mat.NewDense(driftDim, driftDim, []float64{
			math.Cos(w), -math.Sin(w), 0,
			math.Sin(w), math.Cos(w), 0,
			0, 0, 1,
		})
	}

	q, err := noise.NewGaussian(make([]float64, driftDim), eye(driftDim, 1.0), src)
	if err != nil {
		return nil, err
	}

	r, err := noise.NewGaussian(make([]float64, m), eye(m, 9.0), src)
	if err != nil {
		return nil, err
	}

	return &Drifting{
		m:   m,
		n:   n,
		c:   c,
		a:   a,
		q:   q,
		r:   r,
		src: src,
	}, nil
}

// Dims returns the observed, latent and time dimensions of the model.
func (g *Drifting) Dims() (m, d, n int) {
	return g.m, driftDim, g.n
}

// Dynamics returns the rotation applied at step i.
func (g *Drifting) Dynamics(i int) mat.Matrix {
	a := &mat.Dense{}
	a.CloneFrom(g.a[i])

	return a
}

// Mixing returns the latent-to-observation mixing matrix.
func (g *Drifting) Mixing() mat.Matrix {
	c := &mat.Dense{}
	c.CloneFrom(g.c)

	return c
}

// Simulate draws one trajectory from the model. It returns the noisy
// observations y (m x n), the noiseless outputs f (m x n) and the latent
// trajectory x (3 x n).
func (g *Drifting) Simulate() (y, f, x *mat.Dense, err error) {
	y = mat.NewDense(g.m, g.n, nil)
	f = mat.NewDense(g.m, g.n, nil)
	x = mat.NewDense(driftDim, g.n, nil)

	// x0 ~ N(0, 100*I)
	x0, err := rnd.WithCovN(eye(driftDim, 100.0), 1, g.src)
	if err != nil {
		return nil, nil, nil, err
	}
	state := mat.NewVecDense(driftDim, nil)
	state.CloneFromVec(x0.ColView(0))

	for t := 0; t < g.n; t++ {
		if t > 0 {
			next := &mat.VecDense{}
			next.MulVec(g.a[t-1], state)
			next.AddVec(next, g.q.Sample())
			state = next
		}

		out := &mat.VecDense{}
		out.MulVec(g.c, state)

		obs := &mat.VecDense{}
		obs.AddVec(out, g.r.Sample())

		x.SetCol(t, rawVec(state))
		f.SetCol(t, rawVec(out))
		y.SetCol(t, rawVec(obs))
	}

	return y, f, x, nil
}

func eye(n int, v float64) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, v)
	}

	return m
}

func rawVec(v *mat.VecDense) []float64 {
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}

	return data
}
