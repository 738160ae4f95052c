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
	lmatrix "github.com/vbayes/lgssm/matrix"
	"github.com/vbayes/lgssm/rnd"
	"github.com/vbayes/lgssm/sim"
	"github.com/vbayes/lgssm/smooth/rts"
	"gonum.org/v1/gonum/mat"
)

// s0 prior precision of the drift chain is 1e-6
const driftInitCov = 1e6

// DLSSM fits a linear Gaussian state-space model whose dynamics drift:
// the transition matrix at step n is a projection B of a K-dimensional
// drift state s_n that itself evolves as a Gaussian chain, and the
// mixing weights blend with the same drift state:
//
//	s_{n+1} = A s_n + v,              v ~ N(0, I)
//	x_{n+1} = (B*s_n) x_n + w,        w ~ N(0, I)
//	y_n     = C*(x_{n+1} (x) s_n) + e, e ~ N(0, 1/tau)
//
// A, B and C carry ARD Gaussian priors (alpha, beta, gamma); tau has a
// Gamma hyperprior. The posterior keeps q(X) and q(S) as separate chains
// and takes their product moments factorized.
type DLSSM struct {
	// d is the latent dimension
	d int
	// k is the drift dimension
	k int
	// cfg is the fitter configuration
	cfg Config
}

// DLSSMPosterior is the fitted mean-field posterior of the DLSSM.
type DLSSMPosterior struct {
	// X are smoothed latent state estimates (one more than the
	// observation count; the first state is unobserved)
	X []*estimate.Smoothed
	// S are smoothed drift state estimates
	S []*estimate.Smoothed
	// A is the drift dynamics factor
	A *factor.GaussianMatrix
	// Alpha are ARD precisions of the A columns
	Alpha *factor.Gamma
	// B is the dynamics projection factor, rows indexed by the target
	// latent dimension, columns by (source dimension, drift dimension)
	B *factor.GaussianMatrix
	// Beta are ARD precisions of the B columns
	Beta *factor.Gamma
	// C is the mixing factor, columns indexed by (latent, drift)
	C *factor.GaussianMatrix
	// Gamma are ARD precisions of the C columns
	Gamma *factor.Gamma
	// Tau is the observation noise precision factor
	Tau *factor.Gamma
	// Trace are per-iteration fit scores
	Trace Trace
}

// NewDLSSM creates a drifting-dynamics fitter with latent dimension d
// and drift dimension k.
// It returns error if either dimension is not positive.
func NewDLSSM(d, k int, cfg *Config) (*DLSSM, error) {
	if d <= 0 || k <= 0 {
		return nil, fmt.Errorf("invalid model dimensions: [%d x %d]", d, k)
	}

	c := Config{}
	if cfg != nil {
		c = *cfg
	}

	return &DLSSM{d: d, k: k, cfg: c.withDefaults()}, nil
}

// Fit runs MaxIter coordinate update sweeps on the observations y under
// the visibility mask and returns the fitted posterior. A nil mask marks
// every entry visible. Masked entries of y are never read.
// It returns error if the data dimensions are inconsistent or a chain
// smoothing pass fails.
func (l *DLSSM) Fit(y *mat.Dense, mask [][]bool) (*DLSSMPosterior, error) {
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

	d, k := l.d, l.k
	cfg := l.cfg

	// drift dynamics starts at identity
	eyeK, err := matrix.NewDenseValIdentity(k, 1.0)
	if err != nil {
		return nil, err
	}
	a, err := factor.NewGaussianMatrix(eyeK)
	if err != nil {
		return nil, err
	}

	// B*s_n is the identity under the initial drift state of ones
	bInit := mat.NewDense(d, d*k, nil)
	for i := 0; i < d; i++ {
		bInit.Set(i, i*k, 1.0)
	}
	b, err := factor.NewGaussianMatrix(bInit)
	if err != nil {
		return nil, err
	}

	cInit, err := rnd.Randn(m, d*k, rand.NewSource(cfg.Seed))
	if err != nil {
		return nil, err
	}
	c, err := factor.NewGaussianMatrix(cInit)
	if err != nil {
		return nil, err
	}

	alpha, err := factor.NewGamma(cfg.A0, cfg.B0, k)
	if err != nil {
		return nil, err
	}
	beta, err := factor.NewGamma(cfg.A0, cfg.B0, d*k)
	if err != nil {
		return nil, err
	}
	gamma, err := factor.NewGamma(cfg.A0, cfg.B0, d*k)
	if err != nil {
		return nil, err
	}
	tau, err := factor.NewGamma(cfg.A0, cfg.B0, 1)
	if err != nil {
		return nil, err
	}

	post := &DLSSMPosterior{
		A:     a,
		Alpha: alpha,
		B:     b,
		Beta:  beta,
		C:     c,
		Gamma: gamma,
		Tau:   tau,
		Trace: make(Trace, 0, cfg.MaxIter),
	}

	// the drift chain starts at ones, where B*s_n is the identity
	ones := mat.NewVecDense(k, nil)
	for i := 0; i < k; i++ {
		ones.SetVec(i, 1.0)
	}
	post.S = make([]*estimate.Smoothed, n)
	for t := range post.S {
		s, err := estimate.NewSmoothed(ones, mat.NewSymDense(k, nil), nil)
		if err != nil {
			return nil, err
		}
		post.S[t] = s
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
		// q(X)
		x, err := l.smoothLatent(y, mask, post)
		if err != nil {
			return nil, fmt.Errorf("latent chain update failed: %v", err)
		}
		post.X = x
		cfg.Logger.Debug("updated factor", "factor", "X", "iter", iter)

		// q(S)
		s, err := l.smoothDrift(y, mask, post)
		if err != nil {
			return nil, fmt.Errorf("drift chain update failed: %v", err)
		}
		post.S = s
		cfg.Logger.Debug("updated factor", "factor", "S", "iter", iter)

		// chain moments
		exx := make([]*mat.SymDense, n+1)
		for t := 0; t <= n; t++ {
			exx[t] = secondMoment(x[t])
		}
		ess := make([]*mat.SymDense, n)
		for t := 0; t < n; t++ {
			ess[t] = secondMoment(s[t])
		}

		// q(A): regression of s_{n+1} on s_n
		sss := mat.NewSymDense(k, nil)
		g := mat.NewDense(k, k, nil)
		for t := 0; t < n-1; t++ {
			sss.AddSym(sss, ess[t])
			g.Add(g, crossMoment(s[t+1], s[t]))
		}
		if err := a.Update(alpha.Mean(), sss, g); err != nil {
			return nil, fmt.Errorf("drift dynamics update failed: %v", err)
		}
		cfg.Logger.Debug("updated factor", "factor", "A", "iter", iter)

		if err := alpha.Update(float64(k), a.SqColSums()); err != nil {
			return nil, fmt.Errorf("drift dynamics ARD update failed: %v", err)
		}
		cfg.Logger.Debug("updated factor", "factor", "alpha", "iter", iter)

		// q(B): regression of x_{t+1} on x_t (x) s_t
		szz := mat.NewSymDense(d*k, nil)
		sxyB := mat.NewDense(d, d*k, nil)
		kr := &mat.Dense{}
		for t := 0; t < n; t++ {
			kr.Kronecker(exx[t], ess[t])
			szz.AddSym(szz, lmatrix.Symmetrize(kr))

			cross := crossMoment(x[t+1], x[t])
			sbar := s[t].Val()
			for i := 0; i < d; i++ {
				for j := 0; j < d; j++ {
					for kk := 0; kk < k; kk++ {
						col := j*k + kk
						sxyB.Set(i, col, sxyB.At(i, col)+cross.At(i, j)*sbar.AtVec(kk))
					}
				}
			}
			kr.Reset()
		}
		if err := b.Update(beta.Mean(), szz, sxyB); err != nil {
			return nil, fmt.Errorf("dynamics projection update failed: %v", err)
		}
		cfg.Logger.Debug("updated factor", "factor", "B", "iter", iter)

		if err := beta.Update(float64(d), b.SqColSums()); err != nil {
			return nil, fmt.Errorf("dynamics projection ARD update failed: %v", err)
		}
		cfg.Logger.Debug("updated factor", "factor", "beta", "iter", iter)

		// emission design moments u_t = x_{t+1} (x) s_t
		euu := make([]*mat.SymDense, n)
		ubar := make([]*mat.VecDense, n)
		for t := 0; t < n; t++ {
			kr.Kronecker(exx[t+1], ess[t])
			euu[t] = lmatrix.Symmetrize(kr)
			ubar[t] = kronVec(x[t+1].Val(), s[t].Val())
			kr.Reset()
		}

		// q(C): per-row regression of visible observations on u_t
		tauMean := tau.Mean()[0]
		for i := 0; i < m; i++ {
			suu := mat.NewSymDense(d*k, nil)
			suy := mat.NewVecDense(d*k, nil)
			for t := 0; t < n; t++ {
				if mask != nil && !mask[i][t] {
					continue
				}
				suu.AddSym(suu, euu[t])
				suy.AddScaledVec(suy, y.At(i, t), ubar[t])
			}
			suu.ScaleSym(tauMean, suu)
			suy.ScaleVec(tauMean, suy)
			if err := c.UpdateRow(i, gamma.Mean(), suu, suy); err != nil {
				return nil, fmt.Errorf("mixing update failed: %v", err)
			}
		}
		cfg.Logger.Debug("updated factor", "factor", "C", "iter", iter)

		if err := gamma.Update(float64(m), c.SqColSums()); err != nil {
			return nil, fmt.Errorf("mixing ARD update failed: %v", err)
		}
		cfg.Logger.Debug("updated factor", "factor", "gamma", "iter", iter)

		// q(tau)
		var resid float64
		for i := 0; i < m; i++ {
			ecc := c.RowSecondMoment(i)
			cm := c.Row(i)
			for t := 0; t < n; t++ {
				if mask != nil && !mask[i][t] {
					continue
				}
				yv := y.At(i, t)
				pred := mat.Dot(cm, ubar[t])
				resid += yv*yv - 2*yv*pred + traceProd(ecc, euu[t])
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

// smoothLatent runs the Kalman smoother over the latent chain. The chain
// has n+1 states; state t>0 emits observation column t-1 through the
// drift-blended mixing matrix, state 0 is unobserved. The quadratic
// transition and emission terms carry the full second moments of B, C
// and S: the mass they add beyond the blended means enters as a
// potential on each state.
func (l *DLSSM) smoothLatent(y *mat.Dense, mask [][]bool, post *DLSSMPosterior) ([]*estimate.Smoothed, error) {
	m, n := y.Dims()
	d, k := l.d, l.k

	bMean := post.B.Mean()
	cMean := post.C.Mean()
	tauMean := post.Tau.Mean()[0]

	prec := make([]float64, m)
	for i := range prec {
		prec[i] = tauMean
	}
	hidden := make([]bool, m)

	// observation columns shifted one step right
	yx := mat.NewDense(m, n+1, nil)
	for t := 0; t < n; t++ {
		for i := 0; i < m; i++ {
			yx.Set(i, t+1, y.At(i, t))
		}
	}

	ess := make([]*mat.SymDense, n)
	for t := 0; t < n; t++ {
		ess[t] = secondMoment(post.S[t])
	}
	bSec := make([]*mat.SymDense, d)
	for i := range bSec {
		bSec[i] = post.B.RowSecondMoment(i)
	}
	cSec := make([]*mat.SymDense, m)
	for i := range cSec {
		cSec[i] = post.C.RowSecondMoment(i)
	}

	chain := &kalman.Chain{
		StateDim: d,
		ObsDim:   m,
		DynamicsFn: func(t int) mat.Matrix {
			return blend(bMean, post.S[t].Val(), d, d, k)
		},
		ProcessCovFn: func(int) mat.Symmetric { return eyeSym(d, 1.0) },
		ObservationFn: func(t int) mat.Matrix {
			if t == 0 {
				return mat.NewDense(m, d, nil)
			}
			return blend(cMean, post.S[t-1].Val(), m, d, k)
		},
		ObsPrecisionFn: func(int) []float64 { return prec },
		ObservedFn: func(t int) []bool {
			if t == 0 {
				return hidden
			}
			return maskCol(mask, t-1)
		},
		PotentialFn: func(t int) (mat.Symmetric, mat.Vector) {
			e := mat.NewSymDense(d, nil)

			// E[(B.s)'(B.s)] - E[B.s]'E[B.s] on states with a successor
			if t < n {
				mb := blend(bMean, post.S[t].Val(), d, d, k)
				for i := 0; i < d; i++ {
					e.AddSym(e, essContract(bSec[i], ess[t], d, k))
					e.SymRankOne(e, -1.0, mb.RowView(i))
				}
			}

			// emission mass of the visible rows at the emitted column
			if t > 0 {
				cs := mat.NewSymDense(d, nil)
				cb := blend(cMean, post.S[t-1].Val(), m, d, k)
				for i := 0; i < m; i++ {
					if mask != nil && !mask[i][t-1] {
						continue
					}
					cs.AddSym(cs, essContract(cSec[i], ess[t-1], d, k))
					cs.SymRankOne(cs, -1.0, cb.RowView(i))
				}
				cs.ScaleSym(tauMean, cs)
				e.AddSym(e, cs)
			}

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

	return smoothChain(flt, smoother, yx, n+1)
}

// smoothDrift runs the Kalman smoother over the drift chain. Each drift
// state observes the expected latent transition it modulates (precision
// one, the latent innovation) stacked on top of the visible data column
// it blends into the emission. The pseudo-observations carry only the
// latent means; the mass the latent second moments and the factor row
// covariances add enters as a potential, together with a linear term
// from the lag-one latent cross covariance.
func (l *DLSSM) smoothDrift(y *mat.Dense, mask [][]bool, post *DLSSMPosterior) ([]*estimate.Smoothed, error) {
	m, n := y.Dims()
	d, k := l.d, l.k

	aMean := post.A.Mean()
	bMean := post.B.Mean()
	cMean := post.C.Mean()
	tauMean := post.Tau.Mean()[0]

	prec := make([]float64, d+m)
	for i := 0; i < d; i++ {
		prec[i] = 1.0
	}
	for i := 0; i < m; i++ {
		prec[d+i] = tauMean
	}

	// stacked pseudo-observations: expected next latent state over the
	// visible data column
	ys := mat.NewDense(d+m, n, nil)
	for t := 0; t < n; t++ {
		xv := post.X[t+1].Val()
		for i := 0; i < d; i++ {
			ys.Set(i, t, xv.AtVec(i))
		}
		for i := 0; i < m; i++ {
			ys.Set(d+i, t, y.At(i, t))
		}
	}

	exx := make([]*mat.SymDense, n+1)
	for t := range exx {
		exx[t] = secondMoment(post.X[t])
	}
	bSec := make([]*mat.SymDense, d)
	for i := range bSec {
		bSec[i] = post.B.RowSecondMoment(i)
	}
	cSec := make([]*mat.SymDense, m)
	for i := range cSec {
		cSec[i] = post.C.RowSecondMoment(i)
	}
	covAS := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		covAS.AddSym(covAS, post.A.RowCov(i))
	}

	obsAt := func(t int) *mat.Dense {
		obs := mat.NewDense(d+m, k, nil)

		// transition rows: d(B*s)/ds contracted with E[x_t]
		xv := post.X[t].Val()
		for i := 0; i < d; i++ {
			for kk := 0; kk < k; kk++ {
				var v float64
				for j := 0; j < d; j++ {
					v += bMean.At(i, j*k+kk) * xv.AtVec(j)
				}
				obs.Set(i, kk, v)
			}
		}

		// emission rows: d(C*(x (x) s))/ds contracted with E[x_{t+1}]
		xn := post.X[t+1].Val()
		for i := 0; i < m; i++ {
			for kk := 0; kk < k; kk++ {
				var v float64
				for j := 0; j < d; j++ {
					v += cMean.At(i, j*k+kk) * xn.AtVec(j)
				}
				obs.Set(d+i, kk, v)
			}
		}

		return obs
	}

	chain := &kalman.Chain{
		StateDim:       k,
		ObsDim:         d + m,
		DynamicsFn:     func(int) mat.Matrix { return aMean },
		ProcessCovFn:   func(int) mat.Symmetric { return eyeSym(k, 1.0) },
		ObservationFn:  func(t int) mat.Matrix { return obsAt(t) },
		ObsPrecisionFn: func(int) []float64 { return prec },
		ObservedFn: func(t int) []bool {
			vis := make([]bool, d+m)
			for i := 0; i < d; i++ {
				vis[i] = true
			}
			for i := 0; i < m; i++ {
				vis[d+i] = mask == nil || mask[i][t]
			}
			return vis
		},
		PotentialFn: func(t int) (mat.Symmetric, mat.Vector) {
			e := mat.NewSymDense(k, nil)
			if t < n-1 {
				e.AddSym(e, covAS)
			}

			obs := obsAt(t)

			// transition mass beyond the mean-contracted rows
			et := mat.NewSymDense(k, nil)
			for i := 0; i < d; i++ {
				et.AddSym(et, exxContract(bSec[i], exx[t], d, k))
				et.SymRankOne(et, -1.0, obs.RowView(i))
			}
			e.AddSym(e, et)

			// emission mass of the visible rows
			ee := mat.NewSymDense(k, nil)
			for i := 0; i < m; i++ {
				if mask != nil && !mask[i][t] {
					continue
				}
				ee.AddSym(ee, exxContract(cSec[i], exx[t+1], d, k))
				ee.SymRankOne(ee, -1.0, obs.RowView(d+i))
			}
			ee.ScaleSym(tauMean, ee)
			e.AddSym(e, ee)

			// linear term from Cov(x_{t+1}, x_t) in the transition coupling
			cc := post.X[t+1].CrossCov()
			h := mat.NewVecDense(k, nil)
			for a := 0; a < k; a++ {
				var v float64
				for i := 0; i < d; i++ {
					for j := 0; j < d; j++ {
						v += bMean.At(i, j*k+a) * cc.At(i, j)
					}
				}
				h.SetVec(a, v)
			}

			return e, h
		},
	}

	ones := mat.NewVecDense(k, nil)
	for i := 0; i < k; i++ {
		ones.SetVec(i, 1.0)
	}
	ic := sim.NewInitCond(ones, eyeSym(k, driftInitCov))

	flt, err := kf.New(chain, ic)
	if err != nil {
		return nil, err
	}

	smoother, err := rts.New(chain)
	if err != nil {
		return nil, err
	}

	return smoothChain(flt, smoother, ys, n)
}

// blend contracts the drift state out of a factor mean whose columns are
// indexed by (column, drift): out[i,j] = sum_k w[i, j*kd+k] * s[k].
func blend(w *mat.Dense, s mat.Vector, rows, cols, kd int) *mat.Dense {
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			var v float64
			for kk := 0; kk < kd; kk++ {
				v += w.At(i, j*kd+kk) * s.AtVec(kk)
			}
			out.Set(i, j, v)
		}
	}

	return out
}

// essContract contracts the drift indices of a factor row second moment
// against a drift second moment: out[j,j'] = sum_{a,b} w2[j*kd+a, j'*kd+b]*ess[a,b].
func essContract(w2, ess mat.Symmetric, cols, kd int) *mat.SymDense {
	out := mat.NewSymDense(cols, nil)
	for j := 0; j < cols; j++ {
		for jp := j; jp < cols; jp++ {
			var v float64
			for a := 0; a < kd; a++ {
				for b := 0; b < kd; b++ {
					v += w2.At(j*kd+a, jp*kd+b) * ess.At(a, b)
				}
			}
			out.SetSym(j, jp, v)
		}
	}

	return out
}

// exxContract contracts the column indices of a factor row second moment
// against a latent second moment: out[a,b] = sum_{j,j'} w2[j*kd+a, j'*kd+b]*exx[j,j'].
func exxContract(w2, exx mat.Symmetric, cols, kd int) *mat.SymDense {
	out := mat.NewSymDense(kd, nil)
	for a := 0; a < kd; a++ {
		for b := a; b < kd; b++ {
			var v float64
			for j := 0; j < cols; j++ {
				for jp := 0; jp < cols; jp++ {
					v += w2.At(j*kd+a, jp*kd+b) * exx.At(j, jp)
				}
			}
			out.SetSym(a, b, v)
		}
	}

	return out
}

// kronVec returns the Kronecker product a (x) b of two vectors.
func kronVec(a, b mat.Vector) *mat.VecDense {
	out := mat.NewVecDense(a.Len()*b.Len(), nil)
	for i := 0; i < a.Len(); i++ {
		for j := 0; j < b.Len(); j++ {
			out.SetVec(i*b.Len()+j, a.AtVec(i)*b.AtVec(j))
		}
	}

	return out
}

// OutputMoments returns the posterior mean and standard deviation of the
// noiseless outputs C*(x_{n+1} (x) s_n).
func (p *DLSSMPosterior) OutputMoments() (mean, sd *mat.Dense) {
	m, _ := p.C.Dims()
	n := len(p.S)

	mean = mat.NewDense(m, n, nil)
	sd = mat.NewDense(m, n, nil)

	kr := &mat.Dense{}
	for t := 0; t < n; t++ {
		exx := secondMoment(p.X[t+1])
		ess := secondMoment(p.S[t])
		kr.Kronecker(exx, ess)
		euu := lmatrix.Symmetrize(kr)
		ub := kronVec(p.X[t+1].Val(), p.S[t].Val())

		for i := 0; i < m; i++ {
			cm := p.C.Row(i)
			mu := mat.Dot(cm, ub)
			mean.Set(i, t, mu)

			v := traceProd(p.C.RowSecondMoment(i), euu) - mu*mu
			if v < 0 {
				v = 0
			}
			sd.Set(i, t, math.Sqrt(v))
		}
		kr.Reset()
	}

	return mean, sd
}

// LatentMoments returns the posterior mean and standard deviation of the
// latent trajectory, one row per latent dimension.
func (p *DLSSMPosterior) LatentMoments() (mean, sd *mat.Dense) {
	return chainMoments(p.X)
}

// DriftMoments returns the posterior mean and standard deviation of the
// drift trajectory, one row per drift dimension.
func (p *DLSSMPosterior) DriftMoments() (mean, sd *mat.Dense) {
	return chainMoments(p.S)
}
