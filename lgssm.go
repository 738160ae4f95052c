package lgssm

import "gonum.org/v1/gonum/mat"

// Estimate is a Gaussian state estimate.
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// InitCond is the initial state condition of a Gaussian chain.
type InitCond interface {
	// State returns initial chain state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Noise is dynamical system noise.
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset() error
}

// Chain describes a linear Gaussian Markov chain whose operators may
// change from step to step. Step n propagates state n to state n+1 and
// state n emits the n-th observation column.
type Chain interface {
	// Dynamics returns the state transition matrix applied at step n
	Dynamics(n int) mat.Matrix
	// ProcessCov returns the state innovation covariance at step n
	ProcessCov(n int) mat.Symmetric
	// Observation returns the observation matrix at step n
	Observation(n int) mat.Matrix
	// ObsPrecision returns the diagonal observation noise precision at step n
	ObsPrecision(n int) []float64
	// Observed reports which observation rows are visible at step n.
	// A nil slice means every row is visible.
	Observed(n int) []bool
	// Potential returns an extra Gaussian information potential
	// exp(-x'*e*x/2 + x'*h) fused into state n after its measurement
	// update. Either term may be nil.
	Potential(n int) (e mat.Symmetric, h mat.Vector)
	// Dims returns state and observation vector lengths
	Dims() (nx, ny int)
}
