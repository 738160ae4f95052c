package factor

import (
	"fmt"

	"github.com/vbayes/lgssm/matrix"
	"gonum.org/v1/gonum/mat"
)

// GaussianMatrix is a Gaussian posterior over a parameter matrix whose
// rows are independent. Each row carries a diagonal ARD prior precision
// supplied by a Gamma factor, so the posterior update is a ridge
// regression from sufficient statistics.
type GaussianMatrix struct {
	// mean is the posterior mean matrix
	mean *mat.Dense
	// cov are per-row posterior covariances
	cov []*mat.SymDense
}

// NewGaussianMatrix creates a Gaussian matrix factor initialized at init
// with zero covariance.
// It returns error if init is nil or empty.
func NewGaussianMatrix(init *mat.Dense) (*GaussianMatrix, error) {
	if init == nil || init.IsEmpty() {
		return nil, fmt.Errorf("invalid init matrix")
	}

	r, p := init.Dims()
	m := &mat.Dense{}
	m.CloneFrom(init)

	cov := make([]*mat.SymDense, r)
	for i := range cov {
		cov[i] = mat.NewSymDense(p, nil)
	}

	return &GaussianMatrix{mean: m, cov: cov}, nil
}

// Dims returns the row and column counts of the matrix.
func (w *GaussianMatrix) Dims() (r, c int) {
	return w.mean.Dims()
}

// Mean returns the posterior mean matrix.
func (w *GaussianMatrix) Mean() *mat.Dense {
	m := &mat.Dense{}
	m.CloneFrom(w.mean)

	return m
}

// Row returns the posterior mean of row i.
func (w *GaussianMatrix) Row(i int) *mat.VecDense {
	_, p := w.mean.Dims()
	v := mat.NewVecDense(p, nil)
	for j := 0; j < p; j++ {
		v.SetVec(j, w.mean.At(i, j))
	}

	return v
}

// RowCov returns the posterior covariance of row i.
func (w *GaussianMatrix) RowCov(i int) *mat.SymDense {
	c := mat.NewSymDense(w.cov[i].SymmetricDim(), nil)
	c.CopySym(w.cov[i])

	return c
}

// UpdateRow updates the posterior of row i given the diagonal prior
// precision and the normal equation statistics:
//
//	cov = (diag(prior) + sxx)^-1
//	mean = cov * sxy
//
// It returns error if the statistics do not match the factor dimensions
// or the posterior precision cannot be inverted.
func (w *GaussianMatrix) UpdateRow(i int, prior []float64, sxx mat.Symmetric, sxy mat.Vector) error {
	r, p := w.mean.Dims()
	if i < 0 || i >= r {
		return fmt.Errorf("invalid row index: %d", i)
	}

	if len(prior) != p || sxx.SymmetricDim() != p || sxy.Len() != p {
		return fmt.Errorf("invalid sufficient statistics dimensions for row %d", i)
	}

	prec := mat.NewDense(p, p, nil)
	prec.Copy(sxx)
	for j := 0; j < p; j++ {
		prec.Set(j, j, prec.At(j, j)+prior[j])
	}

	cov := &mat.Dense{}
	if err := cov.Inverse(prec); err != nil {
		return fmt.Errorf("failed to invert row %d posterior precision: %v", i, err)
	}

	mu := &mat.VecDense{}
	mu.MulVec(cov, sxy)

	w.cov[i] = matrix.Symmetrize(cov)
	for j := 0; j < p; j++ {
		w.mean.Set(i, j, mu.AtVec(j))
	}

	return nil
}

// Update updates every row from a shared design: all rows use the same
// prior precision and sxx, row i of sxy holds the cross statistics of
// row i. The shared posterior precision is inverted once.
// It returns error under the same conditions as UpdateRow.
func (w *GaussianMatrix) Update(prior []float64, sxx mat.Symmetric, sxy *mat.Dense) error {
	r, p := w.mean.Dims()

	sr, sc := sxy.Dims()
	if sr != r || sc != p {
		return fmt.Errorf("invalid cross statistics dimensions: [%d x %d]", sr, sc)
	}

	if len(prior) != p || sxx.SymmetricDim() != p {
		return fmt.Errorf("invalid sufficient statistics dimensions")
	}

	prec := mat.NewDense(p, p, nil)
	prec.Copy(sxx)
	for j := 0; j < p; j++ {
		prec.Set(j, j, prec.At(j, j)+prior[j])
	}

	cov := &mat.Dense{}
	if err := cov.Inverse(prec); err != nil {
		return fmt.Errorf("failed to invert posterior precision: %v", err)
	}
	covSym := matrix.Symmetrize(cov)

	for i := 0; i < r; i++ {
		mu := &mat.VecDense{}
		mu.MulVec(covSym, sxy.RowView(i))

		w.cov[i] = covSym
		for j := 0; j < p; j++ {
			w.mean.Set(i, j, mu.AtVec(j))
		}
	}

	return nil
}

// SecondMoment returns E[W'W] = mean'*mean + sum of row covariances.
func (w *GaussianMatrix) SecondMoment() *mat.SymDense {
	m := &mat.Dense{}
	m.Mul(w.mean.T(), w.mean)

	sm := matrix.Symmetrize(m)
	for i := range w.cov {
		sm.AddSym(sm, w.cov[i])
	}

	return sm
}

// RowSecondMoment returns E[w_i w_i'] = mu_i*mu_i' + cov_i for row i.
func (w *GaussianMatrix) RowSecondMoment(i int) *mat.SymDense {
	mu := w.Row(i)

	m := &mat.Dense{}
	m.Mul(mu, mu.T())

	sm := matrix.Symmetrize(m)
	sm.AddSym(sm, w.cov[i])

	return sm
}

// SqColSums returns the expected column sums of squared entries,
// sum_i E[W_ij^2], the sufficient statistic of the ARD rate update.
func (w *GaussianMatrix) SqColSums() []float64 {
	_, p := w.mean.Dims()

	sums := matrix.ColSumsSq(w.mean)
	for i := range w.cov {
		for j := 0; j < p; j++ {
			sums[j] += w.cov[i].At(j, j)
		}
	}

	return sums
}
