package estimate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Base is base Gaussian estimate
type Base struct {
	// val is estimated value
	val *mat.VecDense
	// cov is estimated covariance
	cov *mat.SymDense
}

// NewBase returns base estimate given val with zero covariance
func NewBase(val mat.Vector) (*Base, error) {
	v := &mat.VecDense{}
	if val != nil {
		v.CloneFromVec(val)
	}

	c := mat.NewSymDense(v.Len(), nil)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// NewBaseWithCov returns base estimate given value and covariance
func NewBaseWithCov(val mat.Vector, cov mat.Symmetric) (*Base, error) {
	rv, _ := val.Dims()
	rc := cov.SymmetricDim()

	if rv != rc {
		return nil, fmt.Errorf("invalid dimensions. Val: %d, Cov: %d x %d", rv, rc, rc)
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// Val returns estimated value
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns covariance estimate
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// Smoothed is a smoothed Gaussian chain estimate. On top of the marginal
// value and covariance it carries the lag-one cross covariance
// Cov(x_n, x_{n-1}) produced by the backward smoothing recursion, which
// the transition sufficient statistics of variational updates need.
type Smoothed struct {
	Base
	// cross is Cov(x_n, x_{n-1}); nil for the first chain state
	cross *mat.Dense
}

// NewSmoothed returns a smoothed estimate given value, covariance and the
// lag-one cross covariance. cross may be nil for the first chain state.
func NewSmoothed(val mat.Vector, cov mat.Symmetric, cross mat.Matrix) (*Smoothed, error) {
	b, err := NewBaseWithCov(val, cov)
	if err != nil {
		return nil, err
	}

	s := &Smoothed{Base: *b}

	if cross != nil {
		r, _ := cross.Dims()
		if r != val.Len() {
			return nil, fmt.Errorf("invalid cross covariance dimensions: %d x %d", r, val.Len())
		}
		s.cross = mat.DenseCopyOf(cross)
	}

	return s, nil
}

// CrossCov returns the lag-one cross covariance Cov(x_n, x_{n-1}).
// It returns nil for the first state of the chain.
func (s *Smoothed) CrossCov() mat.Matrix {
	if s.cross == nil {
		return nil
	}

	c := &mat.Dense{}
	c.CloneFrom(s.cross)

	return c
}
