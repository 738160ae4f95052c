package factor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"
)

// Gamma is a factor of independent Gamma posteriors sharing one prior.
// It represents precision parameters: observation noise precision and
// the per-column ARD precisions of Gaussian matrix factors.
type Gamma struct {
	// a0 is prior shape
	a0 float64
	// b0 is prior rate
	b0 float64
	// a are posterior shapes
	a []float64
	// b are posterior rates
	b []float64
}

// NewGamma creates a Gamma factor of the given size initialized to its
// prior Gamma(a0, b0).
// It returns error if the prior parameters or size are not positive.
func NewGamma(a0, b0 float64, size int) (*Gamma, error) {
	if a0 <= 0 || b0 <= 0 {
		return nil, fmt.Errorf("invalid Gamma prior: shape %f, rate %f", a0, b0)
	}

	if size <= 0 {
		return nil, fmt.Errorf("invalid Gamma factor size: %d", size)
	}

	a := make([]float64, size)
	b := make([]float64, size)
	for i := range a {
		a[i] = a0
		b[i] = b0
	}

	return &Gamma{a0: a0, b0: b0, a: a, b: b}, nil
}

// Len returns the number of Gamma posteriors in the factor.
func (g *Gamma) Len() int { return len(g.a) }

// Mean returns the posterior means a/b.
func (g *Gamma) Mean() []float64 {
	mean := make([]float64, len(g.a))
	for i := range mean {
		mean[i] = g.a[i] / g.b[i]
	}

	return mean
}

// MeanLog returns the posterior expectations of the log, digamma(a) - log(b).
func (g *Gamma) MeanLog() []float64 {
	ml := make([]float64, len(g.a))
	for i := range ml {
		ml[i] = mathext.Digamma(g.a[i]) - math.Log(g.b[i])
	}

	return ml
}

// Update performs the conjugate update from sufficient statistics:
// each posterior becomes Gamma(a0 + count/2, b0 + sq/2) where count is the
// number of Gaussian terms the precision scales and sq their expected
// sum of squares.
// It returns error if the statistics do not match the factor size or a
// sum of squares is negative.
func (g *Gamma) Update(count float64, sq []float64) error {
	if len(sq) != len(g.a) {
		return fmt.Errorf("invalid sufficient statistics size: %d", len(sq))
	}

	if count < 0 {
		return fmt.Errorf("invalid observation count: %f", count)
	}

	for i := range sq {
		if sq[i] < 0 {
			return fmt.Errorf("negative sum of squares: %f", sq[i])
		}
		g.a[i] = g.a0 + 0.5*count
		g.b[i] = g.b0 + 0.5*sq[i]
	}

	return nil
}

// String implements the Stringer interface.
func (g *Gamma) String() string {
	return fmt.Sprintf("Gamma{a=%v b=%v}", g.a, g.b)
}
