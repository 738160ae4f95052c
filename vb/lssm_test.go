package vb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vbayes/lgssm/rnd"
	"github.com/vbayes/lgssm/sim"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func simulated(t *testing.T, m, n int) (y, f *mat.Dense, mask [][]bool) {
	t.Helper()

	g, err := sim.NewDrifting(m, n, rand.NewSource(42))
	assert.NoError(t, err)

	y, f, _, err = g.Simulate()
	assert.NoError(t, err)

	mask, err = rnd.Mask(m, n, 0.8, rand.NewSource(7))
	assert.NoError(t, err)

	// hide a window of time completely and poison the hidden entries:
	// fitters must never read them
	for i := 0; i < m; i++ {
		for j := n / 3; j < n/2; j++ {
			mask[i][j] = false
		}
	}
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			if !mask[i][j] {
				y.Set(i, j, math.NaN())
			}
		}
	}

	return y, f, mask
}

func rmse(a, b *mat.Dense) float64 {
	r, c := a.Dims()

	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := a.At(i, j) - b.At(i, j)
			sum += d * d
		}
	}

	return math.Sqrt(sum / float64(r*c))
}

// maskedRmse ignores the hidden entries of the comparison.
func maskedRmse(a, b *mat.Dense, mask [][]bool) float64 {
	r, c := a.Dims()

	var sum float64
	var cnt int
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if !mask[i][j] {
				continue
			}
			d := a.At(i, j) - b.At(i, j)
			sum += d * d
			cnt++
		}
	}

	return math.Sqrt(sum / float64(cnt))
}

func allFinite(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}

	return true
}

func TestNewLSSM(t *testing.T) {
	assert := assert.New(t)

	l, err := NewLSSM(4, nil)
	assert.NotNil(l)
	assert.NoError(err)

	l, err = NewLSSM(0, nil)
	assert.Nil(l)
	assert.Error(err)
}

func TestLSSMFit(t *testing.T) {
	assert := assert.New(t)

	m, n := 8, 100
	y, f, mask := simulated(t, m, n)

	cfg := DefaultConfig()
	cfg.MaxIter = 50

	l, err := NewLSSM(4, &cfg)
	assert.NoError(err)

	post, err := l.Fit(y, mask)
	assert.NotNil(post)
	assert.NoError(err)

	assert.Len(post.X, n)
	assert.Len(post.Trace, cfg.MaxIter)

	// masked entries were poisoned with NaNs: any leak would propagate
	mean, sd := post.OutputMoments()
	assert.True(allFinite(mean))
	assert.True(allFinite(sd))

	lm, ls := post.LatentMoments()
	assert.True(allFinite(lm))
	assert.True(allFinite(ls))

	// the fitted outputs track the noiseless signal below the noise floor
	// where data was seen; the fixed dynamics cannot bridge the hidden
	// window of a drifting trajectory
	assert.Less(maskedRmse(mean, f, mask), 3.0)

	// extra sweeps must not unwind the fit
	best := post.Trace[0]
	for _, s := range post.Trace {
		if s > best {
			best = s
		}
	}
	assert.GreaterOrEqual(post.Trace[len(post.Trace)-1], post.Trace[0]-1e-6)
	assert.GreaterOrEqual(post.Trace[len(post.Trace)-1], best-1.0)

	// observation noise has standard deviation 3
	tau := post.Tau.Mean()[0]
	assert.Greater(tau, 1.0/9.0/10.0)
	assert.Less(tau, 10.0/9.0)
}

func TestLSSMFitInvalid(t *testing.T) {
	assert := assert.New(t)

	l, err := NewLSSM(4, nil)
	assert.NoError(err)

	post, err := l.Fit(nil, nil)
	assert.Nil(post)
	assert.Error(err)

	// mask dimensions must match the data
	y := mat.NewDense(3, 10, nil)
	post, err = l.Fit(y, make([][]bool, 2))
	assert.Nil(post)
	assert.Error(err)
}
