package vb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewDLSSM(t *testing.T) {
	assert := assert.New(t)

	l, err := NewDLSSM(4, 3, nil)
	assert.NotNil(l)
	assert.NoError(err)

	l, err = NewDLSSM(0, 3, nil)
	assert.Nil(l)
	assert.Error(err)

	l, err = NewDLSSM(4, -1, nil)
	assert.Nil(l)
	assert.Error(err)
}

func TestDLSSMFit(t *testing.T) {
	assert := assert.New(t)

	m, n := 8, 80
	y, f, mask := simulated(t, m, n)

	cfg := DefaultConfig()
	cfg.MaxIter = 50

	l, err := NewDLSSM(4, 3, &cfg)
	assert.NoError(err)

	post, err := l.Fit(y, mask)
	assert.NotNil(post)
	assert.NoError(err)

	// the latent chain has one leading unobserved state
	assert.Len(post.X, n+1)
	assert.Len(post.S, n)
	assert.Len(post.Trace, cfg.MaxIter)

	// masked entries were poisoned with NaNs: any leak would propagate
	mean, sd := post.OutputMoments()
	assert.True(allFinite(mean))
	assert.True(allFinite(sd))

	lm, ls := post.LatentMoments()
	assert.True(allFinite(lm))
	assert.True(allFinite(ls))

	dm, ds := post.DriftMoments()
	assert.True(allFinite(dm))
	assert.True(allFinite(ds))

	// the fitted outputs track the noiseless signal below the noise floor,
	// hidden window included: the drifting dynamics bridge it
	assert.Less(rmse(mean, f), 3.5)

	// extra sweeps must not unwind the fit
	best := post.Trace[0]
	for _, s := range post.Trace {
		if s > best {
			best = s
		}
	}
	assert.GreaterOrEqual(post.Trace[len(post.Trace)-1], post.Trace[0]-1e-6)
	assert.GreaterOrEqual(post.Trace[len(post.Trace)-1], best-1.0)
}

func TestDLSSMFitInvalid(t *testing.T) {
	assert := assert.New(t)

	l, err := NewDLSSM(4, 3, nil)
	assert.NoError(err)

	post, err := l.Fit(nil, nil)
	assert.Nil(post)
	assert.Error(err)

	y := mat.NewDense(3, 10, nil)
	post, err = l.Fit(y, [][]bool{{true}, {true}, {true}})
	assert.Nil(post)
	assert.Error(err)
}
