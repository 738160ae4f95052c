package vb

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/milosgajdos/matrix"
	"github.com/vbayes/lgssm/estimate"
	"github.com/vbayes/lgssm/factor"
	"github.com/vbayes/lgssm/kalman"
	"github.com/vbayes/lgssm/kalman/kf"
	"github.com/vbayes/lgssm/rnd"
	"github.com/vbayes/lgssm/sim"
	"github.com/vbayes/lgssm/smooth/rts"
	"gonum.org/v1/gonum/mat"
)

const log2pi = 1.8378770664093453

// x0 prior precision of the latent chain is 1e-3
const latentInitCov = 1e3

// LSSM fits a linear Gaussian state-space model with a fixed dynamics
// matrix:
//
//	x_{n+1} = A x_n + w,  w ~ N(0, I)
//	y_n     = C x_n + e,  e ~ N(0, 1/tau)
//
// Rows of A and C carry zero-mean Gaussian priors whose per-column ARD
// precisions (alpha, gamma) and the observation precision tau have
// Gamma hyperpriors.
type LSSM struct {
	// d is the latent dimension
	d int
	// cfg is the fitter configuration
	cfg Config
}

// LSSMPosterior is the fitted mean-field posterior of the LSSM.
type LSSMPosterior struct {
	// X are smoothed latent state estimates
	X []*estimate.Smoothed
	// A is the dynamics matrix factor
	A *factor.GaussianMatrix
	// Alpha are ARD precisions of the A columns
	Alpha *factor.Gamma
	// C is the mixing matrix factor
	C *factor.GaussianMatrix
	// Gamma are ARD precisions of the C columns
	Gamma *factor.Gamma
	// Tau is the observation noise precision factor
	Tau *factor.Gamma
	// Trace are per-iteration fit scores
	Trace Trace
}

// NewLSSM creates a fixed-dynamics fitter with latent dimension d.
// It returns error if d is not positive.
func NewLSSM(d int, cfg *Config) (*LSSM, error) {
	if d <= 0 {
		return nil, fmt.Errorf("invalid latent dimension: %d", d)
	}

	c := Config{}
	if cfg != nil {
		c = *cfg
	}

	return &LSSM{d: d, cfg: c.withDefaults()}, nil
}

// Fit runs MaxIter coordinate update sweeps on the observations y under
// the visibility mask and returns the fitted posterior. A nil mask marks
// every entry visible. Masked entries of y are never read.
// It returns error if the data dimensions are inconsistent or a chain
// smoothing pass fails.
func (l *LSSM) Fit(y *mat.Dense, mask [][]bool) (*LSSMPosterior, error) {
	if y == nil || y.IsEmpty() {
		return nil, fmt.Errorf("invalid observation matrix")
	}

	m, n := y.Dims()
	if mask != nil {
		if len(mask) != m {
			return nil, fmt.Errorf("invalid mask dimensions: %d rows", len(mask))
		}
		for i := range mask {
			if len(mask[i]) != n {
				return nil, fmt.Errorf("invalid mask dimensions: row %d has %d entries", i, len(mask[i]))
			}
		}
	}

	d := l.d
	cfg := l.cfg

	// dynamics starts at identity, mixing at random
	eyeD, err := matrix.NewDenseValIdentity(d, 1.0)
	if err != nil {
		return nil, err
	}
	a, err := factor.NewGaussianMatrix(eyeD)
	if err != nil {
		return nil, err
	}

	cInit, err := rnd.Randn(m, d, rand.NewSource(cfg.Seed))
	if err != nil {
		return nil, err
	}
	c, err := factor.NewGaussianMatrix(cInit)
	if err != nil {
		return nil, err
	}

	alpha, err := factor.NewGamma(cfg.A0, cfg.B0, d)
	if err != nil {
		return nil, err
	}
	gamma, err := factor.NewGamma(cfg.A0, cfg.B0, d)
	if err != nil {
		return nil, err
	}
	tau, err := factor.NewGamma(cfg.A0, cfg.B0, 1)
	if err != nil {
		return nil, err
	}

	post := &LSSMPosterior{
		A:     a,
		Alpha: alpha,
		C:     c,
		Gamma: gamma,
		Tau:   tau,
		Trace: make(Trace, 0, cfg.MaxIter),
	}

	nObs := 0.0
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			if mask == nil || mask[i][j] {
				nObs++
			}
		}
	}

	for iter := 0; iter < cfg.MaxIter; iter++ {
		// q(X): smooth the latent chain under expected parameters
		x, err := l.smoothLatent(y, mask, post)
		if err != nil {
			return nil, fmt.Errorf("latent chain update failed: %v", err)
		}
		post.X = x
		cfg.Logger.Debug("updated factor", "factor", "X", "iter", iter)

		// chain moments
		exx := make([]*mat.SymDense, n)
		for t := 0; t < n; t++ {
			exx[t] = secondMoment(x[t])
		}

		// q(A): regression of x_{n+1} on x_n
		sxx := mat.NewSymDense(d, nil)
		g := mat.NewDense(d, d, nil)
		for t := 0; t < n-1; t++ {
			sxx.AddSym(sxx, exx[t])
			g.Add(g, crossMoment(x[t+1], x[t]))
		}
		if err := a.Update(alpha.Mean(), sxx, g); err != nil {
			return nil, fmt.Errorf("dynamics update failed: %v", err)
		}
		cfg.Logger.Debug("updated factor", "factor", "A", "iter", iter)

		// q(alpha)
		if err := alpha.Update(float64(d), a.SqColSums()); err != nil {
			return nil, fmt.Errorf("dynamics ARD update failed: %v", err)
		}
		cfg.Logger.Debug("updated factor", "factor", "alpha", "iter", iter)

		// q(C): per-row regression of visible observations on x_n
		tauMean := tau.Mean()[0]
		for i := 0; i < m; i++ {
			sxxC := mat.NewSymDense(d, nil)
			sxy := mat.NewVecDense(d, nil)
			for t := 0; t < n; t++ {
				if mask != nil && !mask[i][t] {
					continue
				}
				sxxC.AddSym(sxxC, exx[t])
				sxy.AddScaledVec(sxy, y.At(i, t), x[t].Val())
			}
			sxxC.ScaleSym(tauMean, sxxC)
			sxy.ScaleVec(tauMean, sxy)
			if err := c.UpdateRow(i, gamma.Mean(), sxxC, sxy); err != nil {
				return nil, fmt.Errorf("mixing update failed: %v", err)
			}
		}
		cfg.Logger.Debug("updated factor", "factor", "C", "iter", iter)

		// q(gamma)
		if err := gamma.Update(float64(m), c.SqColSums()); err != nil {
			return nil, fmt.Errorf("mixing ARD update failed: %v", err)
		}
		cfg.Logger.Debug("updated factor", "factor", "gamma", "iter", iter)

		// q(tau): expected squared residual over visible entries
		var resid float64
		for i := 0; i < m; i++ {
			ecc := c.RowSecondMoment(i)
			cm := c.Row(i)
			for t := 0; t < n; t++ {
				if mask != nil && !mask[i][t] {
					continue
				}
				yv := y.At(i, t)
				pred := mat.Dot(cm, x[t].Val())
				resid += yv*yv - 2*yv*pred + traceProd(ecc, exx[t])
			}
		}
		if err := tau.Update(nObs, []float64{resid}); err != nil {
			return nil, fmt.Errorf("observation precision update failed: %v", err)
		}
		cfg.Logger.Debug("updated factor", "factor", "tau", "iter", iter)

		score := 0.5*nObs*(tau.MeanLog()[0]-log2pi) - 0.5*tau.Mean()[0]*resid
		post.Trace = append(post.Trace, score)
		cfg.Logger.Info("iteration done", "iter", iter, "score", score)
	}

	return post, nil
}

// smoothLatent runs the Kalman smoother over the latent chain using the
// expected parameter factors. The transition and emission quadratic
// terms carry the parameter second moments, not just the means: the
// covariance mass of A enters as a potential on every state with a
// successor and the covariance mass of the visible C rows, scaled by
// the expected observation precision, as a potential on every observed
// state.
func (l *LSSM) smoothLatent(y *mat.Dense, mask [][]bool, post *LSSMPosterior) ([]*estimate.Smoothed, error) {
	m, n := y.Dims()
	d := l.d

	aMean := post.A.Mean()
	cMean := post.C.Mean()
	tauMean := post.Tau.Mean()[0]

	prec := make([]float64, m)
	for i := range prec {
		prec[i] = tauMean
	}

	// E[A'A] - E[A]'E[A] and E[c_i c_i'] - E[c_i]E[c_i]'
	covA := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		covA.AddSym(covA, post.A.RowCov(i))
	}
	covC := make([]*mat.SymDense, m)
	for i := range covC {
		covC[i] = post.C.RowCov(i)
	}

	chain := &kalman.Chain{
		StateDim:       d,
		ObsDim:         m,
		DynamicsFn:     func(int) mat.Matrix { return aMean },
		ProcessCovFn:   func(int) mat.Symmetric { return eyeSym(d, 1.0) },
		ObservationFn:  func(int) mat.Matrix { return cMean },
		ObsPrecisionFn: func(int) []float64 { return prec },
		ObservedFn:     func(t int) []bool { return maskCol(mask, t) },
		PotentialFn: func(t int) (mat.Symmetric, mat.Vector) {
			e := mat.NewSymDense(d, nil)
			if t < n-1 {
				e.AddSym(e, covA)
			}

			cs := mat.NewSymDense(d, nil)
			for i := 0; i < m; i++ {
				if mask != nil && !mask[i][t] {
					continue
				}
				cs.AddSym(cs, covC[i])
			}
			cs.ScaleSym(tauMean, cs)
			e.AddSym(e, cs)

			return e, nil
		},
	}

	ic := sim.NewInitCond(mat.NewVecDense(d, nil), eyeSym(d, latentInitCov))

	flt, err := kf.New(chain, ic)
	if err != nil {
		return nil, err
	}

	smoother, err := rts.New(chain)
	if err != nil {
		return nil, err
	}

	return smoothChain(flt, smoother, y, n)
}

// OutputMoments returns the posterior mean and standard deviation of the
// noiseless outputs C*x_n.
func (p *LSSMPosterior) OutputMoments() (mean, sd *mat.Dense) {
	m, _ := p.C.Dims()
	n := len(p.X)

	mean = mat.NewDense(m, n, nil)
	sd = mat.NewDense(m, n, nil)

	for i := 0; i < m; i++ {
		cm := p.C.Row(i)
		cc := p.C.RowCov(i)
		for t := 0; t < n; t++ {
			xv := p.X[t].Val()
			xc := p.X[t].Cov()

			mean.Set(i, t, mat.Dot(cm, xv))

			// Var(c'x) for independent Gaussian c and x
			v := mat.Inner(cm, xc, cm) + mat.Inner(xv, cc, xv) + traceProd(cc, xc)
			sd.Set(i, t, math.Sqrt(v))
		}
	}

	return mean, sd
}

// LatentMoments returns the posterior mean and standard deviation of the
// latent trajectory, one row per latent dimension.
func (p *LSSMPosterior) LatentMoments() (mean, sd *mat.Dense) {
	return chainMoments(p.X)
}

func chainMoments(x []*estimate.Smoothed) (mean, sd *mat.Dense) {
	if len(x) == 0 {
		return &mat.Dense{}, &mat.Dense{}
	}

	d := x[0].Val().Len()
	n := len(x)

	mean = mat.NewDense(d, n, nil)
	sd = mat.NewDense(d, n, nil)

	for t := 0; t < n; t++ {
		v := x[t].Val()
		c := x[t].Cov()
		for i := 0; i < d; i++ {
			mean.Set(i, t, v.AtVec(i))
			sd.Set(i, t, math.Sqrt(c.At(i, i)))
		}
	}

	return mean, sd
}
