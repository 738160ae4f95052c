package factor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewGamma(t *testing.T) {
	assert := assert.New(t)

	g, err := NewGamma(1e-5, 1e-5, 3)
	assert.NotNil(g)
	assert.NoError(err)
	assert.Equal(3, g.Len())

	// prior mean is a0/b0
	for _, m := range g.Mean() {
		assert.InDelta(1.0, m, 1e-10)
	}

	g, err = NewGamma(-1, 1e-5, 3)
	assert.Nil(g)
	assert.Error(err)

	g, err = NewGamma(1e-5, 1e-5, 0)
	assert.Nil(g)
	assert.Error(err)
}

func TestGammaUpdate(t *testing.T) {
	assert := assert.New(t)

	g, err := NewGamma(1e-5, 1e-5, 1)
	assert.NoError(err)

	// 4 squared terms summing to 2: posterior mean approaches
	// count/sq = 2 as the flat prior washes out
	assert.NoError(g.Update(4, []float64{2.0}))
	assert.InDelta(2.0, g.Mean()[0], 1e-3)

	// invalid statistics
	assert.Error(g.Update(4, []float64{1.0, 2.0}))
	assert.Error(g.Update(-1, []float64{1.0}))
	assert.Error(g.Update(4, []float64{-1.0}))
}

func TestGammaMeanLog(t *testing.T) {
	assert := assert.New(t)

	g, err := NewGamma(1e-5, 1e-5, 2)
	assert.NoError(err)
	assert.NoError(g.Update(10, []float64{5.0, 5.0}))

	mean := g.Mean()
	for i, ml := range g.MeanLog() {
		assert.False(math.IsNaN(ml))
		// Jensen: E[log x] < log E[x]
		assert.Less(ml, math.Log(mean[i]))
	}
}
