package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func TestNewDrifting(t *testing.T) {
	assert := assert.New(t)

	g, err := NewDrifting(10, 200, rand.NewSource(42))
	assert.NotNil(g)
	assert.NoError(err)

	m, d, n := g.Dims()
	assert.Equal(10, m)
	assert.Equal(3, d)
	assert.Equal(200, n)

	g, err = NewDrifting(0, 200, rand.NewSource(42))
	assert.Nil(g)
	assert.Error(err)

	g, err = NewDrifting(10, 1, rand.NewSource(42))
	assert.Nil(g)
	assert.Error(err)
}

func TestDriftingDynamics(t *testing.T) {
	assert := assert.New(t)

	g, err := NewDrifting(5, 100, rand.NewSource(42))
	assert.NoError(err)

	// every dynamics matrix is a rotation: orthogonal with unit determinant
	for _, i := range []int{0, 50, 98} {
		a := g.Dynamics(i)

		ata := &mat.Dense{}
		ata.Mul(a.T(), a)
		assert.True(mat.EqualApprox(ata, eye(3, 1.0), 1e-12))

		assert.InDelta(1.0, mat.Det(a), 1e-12)
	}

	// the rotation gets faster as the period shrinks from 5 to 1
	first := math.Acos(g.Dynamics(0).At(0, 0))
	last := math.Acos(g.Dynamics(98).At(0, 0))
	assert.InDelta(1.0/5.0, first, 1e-10)
	assert.InDelta(1.0, last, 1e-10)
	assert.Greater(last, first)
}

func TestDriftingSimulate(t *testing.T) {
	assert := assert.New(t)

	g, err := NewDrifting(10, 200, rand.NewSource(42))
	assert.NoError(err)

	y, f, x, err := g.Simulate()
	assert.NoError(err)

	r, c := y.Dims()
	assert.Equal(10, r)
	assert.Equal(200, c)
	r, c = f.Dims()
	assert.Equal(10, r)
	assert.Equal(200, c)
	r, c = x.Dims()
	assert.Equal(3, r)
	assert.Equal(200, c)

	// f is the noiseless mixing of the latent trajectory
	cf := &mat.Dense{}
	cf.Mul(g.Mixing(), x)
	assert.True(mat.EqualApprox(cf, f, 1e-10))

	// identical seeds reproduce the trajectory
	g2, err := NewDrifting(10, 200, rand.NewSource(42))
	assert.NoError(err)
	y2, _, _, err := g2.Simulate()
	assert.NoError(err)
	assert.True(mat.EqualApprox(y, y2, 1e-12))
}
