package rnd

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Randn returns an r x c matrix with standard normal entries drawn from src.
// It fails with error if either dimension is not positive.
func Randn(r, c int, src rand.Source) (*mat.Dense, error) {
	if r <= 0 || c <= 0 {
		return nil, fmt.Errorf("invalid matrix dimensions: [%d x %d]", r, c)
	}

	rng := rand.New(src)
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64()
	}

	return mat.NewDense(r, c, data), nil
}

// WithCovN draws n random samples from a zero-mean Normal (aka Gaussian) distribution with covariance cov.
// It returns matrix which contains the randomly generated samples stored in its columns.
// It fails with error if n is non-positive or if SVD factorization of cov fails.
func WithCovN(cov mat.Symmetric, n int, src rand.Source) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	// Use SVD instead of Cholesky as Cholesky can be numerically unstable if cov is (almost) singular
	var svd mat.SVD
	ok := svd.Factorize(cov, mat.SVDFull)
	if !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	diag := mat.NewDiagDense(len(vals), vals)
	U.Mul(U, diag)

	rows, _ := cov.Dims()
	samples, err := Randn(rows, n, src)
	if err != nil {
		return nil, err
	}
	samples.Mul(U, samples)

	return samples, nil
}

// Mask generates an m x n boolean visibility mask whose entries are true
// with probability p, independently of each other.
// It fails with error if p is outside [0, 1] or dimensions are not positive.
func Mask(m, n int, p float64, src rand.Source) ([][]bool, error) {
	if m <= 0 || n <= 0 {
		return nil, fmt.Errorf("invalid mask dimensions: [%d x %d]", m, n)
	}

	if p < 0 || p > 1 {
		return nil, fmt.Errorf("invalid visibility probability: %f", p)
	}

	rng := rand.New(src)
	mask := make([][]bool, m)
	for i := range mask {
		mask[i] = make([]bool, n)
		for j := range mask[i] {
			mask[i][j] = rng.Float64() < p
		}
	}

	return mask, nil
}
