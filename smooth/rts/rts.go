package rts

import (
	"fmt"

	"github.com/vbayes/lgssm"
	"github.com/vbayes/lgssm/estimate"
	"github.com/vbayes/lgssm/kalman"
	"github.com/vbayes/lgssm/matrix"
	"gonum.org/v1/gonum/mat"
)

// RTS is Rauch-Tung-Striebel smoother for a linear Gaussian chain with
// per-step dynamics. On top of the smoothed marginals it computes the
// lag-one cross covariances Cov(x_{n+1}, x_n) from the smoother gain.
type RTS struct {
	// c is the smoothed chain
	c lgssm.Chain
}

// New creates new RTS and returns it.
// It returns error if the chain state dimension is not positive.
func New(c lgssm.Chain) (*RTS, error) {
	nx, _ := c.Dims()
	if nx <= 0 {
		return nil, fmt.Errorf("invalid chain state dimension: %d", nx)
	}

	return &RTS{c: c}, nil
}

// Smooth implements the Rauch-Tung-Striebel backward recursion over the
// forward-pass estimates f and returns the smoothed estimates.
// It returns error if f is empty, inconsistent, or if a predicted
// covariance cannot be inverted.
func (s *RTS) Smooth(f *kalman.Filtered) ([]*estimate.Smoothed, error) {
	if f == nil || len(f.Post) == 0 {
		return nil, fmt.Errorf("invalid filtered estimates")
	}

	if len(f.Post) != len(f.Pred) {
		return nil, fmt.Errorf("inconsistent filtered estimates: %d != %d", len(f.Post), len(f.Pred))
	}

	steps := len(f.Post)
	nx, _ := s.c.Dims()

	means := make([]*mat.VecDense, steps)
	covs := make([]*mat.SymDense, steps)
	cross := make([]*mat.Dense, steps)

	means[steps-1] = mat.VecDenseCopyOf(f.Post[steps-1].Val())
	covs[steps-1] = mat.NewSymDense(nx, nil)
	covs[steps-1].CopySym(f.Post[steps-1].Cov())

	for n := steps - 2; n >= 0; n-- {
		a := s.c.Dynamics(n)

		// smoother gain J = Pf_n * A' * (Ppred_{n+1})^-1
		pinv := &mat.Dense{}
		if err := pinv.Inverse(f.Pred[n+1].Cov()); err != nil {
			return nil, fmt.Errorf("failed to invert predicted covariance at step %d: %v", n+1, err)
		}
		j := &mat.Dense{}
		j.Mul(f.Post[n].Cov(), a.T())
		j.Mul(j, pinv)

		// smooth the state
		dm := &mat.VecDense{}
		dm.SubVec(means[n+1], f.Pred[n+1].Val())
		corr := &mat.VecDense{}
		corr.MulVec(j, dm)

		m := &mat.VecDense{}
		m.AddVec(f.Post[n].Val(), corr)
		means[n] = m

		// smoothed covariance
		dp := &mat.Dense{}
		dp.Sub(covs[n+1], f.Pred[n+1].Cov())
		jp := &mat.Dense{}
		jp.Mul(j, dp)
		jp.Mul(jp, j.T())
		jp.Add(jp, f.Post[n].Cov())
		covs[n] = matrix.Symmetrize(jp)

		// lag-one cross covariance Cov(x_{n+1}, x_n) = Ps_{n+1} * J'
		c := &mat.Dense{}
		c.Mul(covs[n+1], j.T())
		cross[n+1] = c
	}

	sx := make([]*estimate.Smoothed, steps)
	for n := 0; n < steps; n++ {
		var cc mat.Matrix
		if cross[n] != nil {
			cc = cross[n]
		}
		e, err := estimate.NewSmoothed(means[n], covs[n], cc)
		if err != nil {
			return nil, err
		}
		sx[n] = e
	}

	return sx, nil
}
