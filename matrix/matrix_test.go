package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestColSumsSq(t *testing.T) {
	assert := assert.New(t)

	m := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})

	assert.Equal([]float64{17, 29, 45}, ColSumsSq(m))
}

func TestSymmetrize(t *testing.T) {
	assert := assert.New(t)

	m := mat.NewDense(2, 2, []float64{
		1.0, 0.5 + 1e-12,
		0.5 - 1e-12, 2.0,
	})

	s := Symmetrize(m)
	assert.InDelta(0.5, s.At(0, 1), 1e-10)
	assert.InDelta(s.At(0, 1), s.At(1, 0), 1e-15)

	assert.Panics(func() { Symmetrize(mat.NewDense(2, 3, nil)) })
}

func TestAddOuter(t *testing.T) {
	assert := assert.New(t)

	m := mat.NewDense(2, 2, nil)
	a := mat.NewVecDense(2, []float64{1, 2})
	b := mat.NewVecDense(2, []float64{3, 4})

	AddOuter(m, a, b)
	AddOuter(m, a, b)

	want := mat.NewDense(2, 2, []float64{6, 8, 12, 16})
	assert.True(mat.EqualApprox(want, m, 1e-10))

	assert.Panics(func() { AddOuter(m, mat.NewVecDense(3, nil), b) })
}
