package rts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vbayes/lgssm/kalman"
	"github.com/vbayes/lgssm/kalman/kf"
	"github.com/vbayes/lgssm/sim"
	"github.com/vbayes/lgssm/smooth"
	"gonum.org/v1/gonum/mat"
)

var _ smooth.Smoother = (*RTS)(nil)

// static scalar chain: x_{n+1} = x_n, y_n = x_n + e, e ~ N(0,1);
// process noise defaults to zero
func staticChain() *kalman.Chain {
	return &kalman.Chain{
		StateDim:       1,
		ObsDim:         1,
		DynamicsFn:     func(n int) mat.Matrix { return mat.NewDense(1, 1, []float64{1.0}) },
		ObservationFn:  func(n int) mat.Matrix { return mat.NewDense(1, 1, []float64{1.0}) },
		ObsPrecisionFn: func(n int) []float64 { return []float64{1.0} },
	}
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	s, err := New(staticChain())
	assert.NotNil(s)
	assert.NoError(err)

	bad := staticChain()
	bad.StateDim = 0
	s, err = New(bad)
	assert.Nil(s)
	assert.Error(err)
}

func TestSmoothStatic(t *testing.T) {
	assert := assert.New(t)

	c := staticChain()
	ic := sim.NewInitCond(mat.NewVecDense(1, nil), mat.NewSymDense(1, []float64{1.0}))

	f, err := kf.New(c, ic)
	assert.NoError(err)

	y := mat.NewDense(1, 3, []float64{1.0, 1.0, 1.0})
	fwd, err := f.Filter(y, 3)
	assert.NoError(err)

	s, err := New(c)
	assert.NoError(err)

	sx, err := s.Smooth(fwd)
	assert.NoError(err)
	assert.Len(sx, 3)

	// a static state smooths to the final filtered posterior at every step
	for n := 0; n < 3; n++ {
		assert.InDelta(3.0/4.0, sx[n].Val().AtVec(0), 1e-10)
		assert.InDelta(1.0/4.0, sx[n].Cov().At(0, 0), 1e-10)
	}

	// perfectly correlated neighbours: Cov(x_{n+1}, x_n) equals the marginal
	assert.Nil(sx[0].CrossCov())
	for n := 1; n < 3; n++ {
		cc := sx[n].CrossCov()
		assert.NotNil(cc)
		assert.InDelta(1.0/4.0, cc.At(0, 0), 1e-10)
	}
}

func TestSmoothInvalid(t *testing.T) {
	assert := assert.New(t)

	s, err := New(staticChain())
	assert.NoError(err)

	sx, err := s.Smooth(nil)
	assert.Nil(sx)
	assert.Error(err)

	sx, err = s.Smooth(&kalman.Filtered{})
	assert.Nil(sx)
	assert.Error(err)
}
