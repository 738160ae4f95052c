package kalman

import (
	"github.com/vbayes/lgssm"
	"github.com/vbayes/lgssm/estimate"
	"github.com/vbayes/lgssm/noise"
	"gonum.org/v1/gonum/mat"
)

// Filter is a forward filter over a linear Gaussian chain.
type Filter interface {
	// Filter runs the forward pass over the observation columns of y
	Filter(y *mat.Dense, steps int) (*Filtered, error)
}

// Filtered holds the forward-pass estimates of a Gaussian chain.
type Filtered struct {
	// Post are filtered estimates p(x_n | y_0..n)
	Post []*estimate.Base
	// Pred are one-step predicted estimates p(x_n | y_0..n-1);
	// Pred[0] is the chain prior
	Pred []*estimate.Base
}

// Chain assembles a lgssm.Chain from per-step operator functions.
// A nil ObservedFn marks every observation row visible at every step.
type Chain struct {
	// StateDim is the chain state vector length
	StateDim int
	// ObsDim is the observation vector length
	ObsDim int
	// DynamicsFn returns the transition matrix applied at step n
	DynamicsFn func(n int) mat.Matrix
	// ProcessCovFn returns the innovation covariance at step n
	ProcessCovFn func(n int) mat.Symmetric
	// ProcessNoise is the state innovation noise used when ProcessCovFn
	// is nil; nil means no process noise
	ProcessNoise lgssm.Noise
	// ObservationFn returns the observation matrix at step n
	ObservationFn func(n int) mat.Matrix
	// ObsPrecisionFn returns the diagonal observation precision at step n
	ObsPrecisionFn func(n int) []float64
	// ObservedFn reports the visible observation rows at step n
	ObservedFn func(n int) []bool
	// PotentialFn returns an extra Gaussian information potential on
	// state n; nil means no potential at any step
	PotentialFn func(n int) (mat.Symmetric, mat.Vector)
}

// Dynamics returns the transition matrix applied at step n.
func (c *Chain) Dynamics(n int) mat.Matrix { return c.DynamicsFn(n) }

// ProcessCov returns the innovation covariance at step n. When neither
// ProcessCovFn nor ProcessNoise is set the chain is noiseless.
func (c *Chain) ProcessCov(n int) mat.Symmetric {
	if c.ProcessCovFn != nil {
		return c.ProcessCovFn(n)
	}

	q := c.ProcessNoise
	if q == nil {
		q, _ = noise.NewZero(c.StateDim)
	}

	return q.Cov()
}

// Observation returns the observation matrix at step n.
func (c *Chain) Observation(n int) mat.Matrix { return c.ObservationFn(n) }

// ObsPrecision returns the diagonal observation precision at step n.
func (c *Chain) ObsPrecision(n int) []float64 { return c.ObsPrecisionFn(n) }

// Observed reports the visible observation rows at step n.
func (c *Chain) Observed(n int) []bool {
	if c.ObservedFn == nil {
		return nil
	}
	return c.ObservedFn(n)
}

// Potential returns the extra Gaussian information potential on state n.
func (c *Chain) Potential(n int) (mat.Symmetric, mat.Vector) {
	if c.PotentialFn == nil {
		return nil, nil
	}
	return c.PotentialFn(n)
}

// Dims returns state and observation vector lengths.
func (c *Chain) Dims() (nx, ny int) { return c.StateDim, c.ObsDim }
