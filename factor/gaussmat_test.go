package factor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewGaussianMatrix(t *testing.T) {
	assert := assert.New(t)

	w, err := NewGaussianMatrix(mat.NewDense(2, 3, nil))
	assert.NotNil(w)
	assert.NoError(err)

	r, c := w.Dims()
	assert.Equal(2, r)
	assert.Equal(3, c)

	w, err = NewGaussianMatrix(nil)
	assert.Nil(w)
	assert.Error(err)
}

// noiseless regression design: y = w'x for w = (1, 2) over
// inputs (1,0), (0,1), (1,1)
var (
	sxx = mat.NewSymDense(2, []float64{2, 1, 1, 2})
	sxy = mat.NewVecDense(2, []float64{4, 5})
)

func TestUpdateRow(t *testing.T) {
	assert := assert.New(t)

	w, err := NewGaussianMatrix(mat.NewDense(1, 2, nil))
	assert.NoError(err)

	prior := []float64{1e-8, 1e-8}
	assert.NoError(w.UpdateRow(0, prior, sxx, sxy))

	// flat prior recovers the generating weights
	mu := w.Row(0)
	assert.InDelta(1.0, mu.AtVec(0), 1e-6)
	assert.InDelta(2.0, mu.AtVec(1), 1e-6)

	// posterior covariance is the inverse design
	cov := w.RowCov(0)
	assert.InDelta(2.0/3.0, cov.At(0, 0), 1e-6)
	assert.InDelta(-1.0/3.0, cov.At(0, 1), 1e-6)

	// errors
	assert.Error(w.UpdateRow(5, prior, sxx, sxy))
	assert.Error(w.UpdateRow(0, []float64{1e-8}, sxx, sxy))
}

func TestUpdateShared(t *testing.T) {
	assert := assert.New(t)

	w, err := NewGaussianMatrix(mat.NewDense(2, 2, nil))
	assert.NoError(err)

	prior := []float64{1e-8, 1e-8}
	// second row regresses on the doubled response
	cross := mat.NewDense(2, 2, []float64{4, 5, 8, 10})
	assert.NoError(w.Update(prior, sxx, cross))

	mean := w.Mean()
	assert.InDelta(1.0, mean.At(0, 0), 1e-6)
	assert.InDelta(2.0, mean.At(0, 1), 1e-6)
	assert.InDelta(2.0, mean.At(1, 0), 1e-6)
	assert.InDelta(4.0, mean.At(1, 1), 1e-6)

	assert.Error(w.Update(prior, sxx, mat.NewDense(3, 2, nil)))
}

func TestMoments(t *testing.T) {
	assert := assert.New(t)

	w, err := NewGaussianMatrix(mat.NewDense(1, 2, nil))
	assert.NoError(err)
	assert.NoError(w.UpdateRow(0, []float64{1e-8, 1e-8}, sxx, sxy))

	// E[w w'] = mu mu' + cov
	sm := w.RowSecondMoment(0)
	assert.InDelta(1.0+2.0/3.0, sm.At(0, 0), 1e-6)
	assert.InDelta(2.0-1.0/3.0, sm.At(0, 1), 1e-6)
	assert.InDelta(4.0+2.0/3.0, sm.At(1, 1), 1e-6)

	full := w.SecondMoment()
	assert.True(mat.EqualApprox(sm, full, 1e-10))

	// sum_i E[W_ij^2] per column
	sums := w.SqColSums()
	assert.InDelta(1.0+2.0/3.0, sums[0], 1e-6)
	assert.InDelta(4.0+2.0/3.0, sums[1], 1e-6)
}
