package kf

import (
	"fmt"

	"github.com/vbayes/lgssm"
	"github.com/vbayes/lgssm/estimate"
	"github.com/vbayes/lgssm/kalman"
	"github.com/vbayes/lgssm/matrix"
	"gonum.org/v1/gonum/mat"
)

// KF is a Kalman filter over a linear Gaussian chain with per-step
// operators and partially observed outputs. Observation noise is
// diagonal; rows hidden by the chain visibility mask are left out of the
// measurement update. A per-step Gaussian information potential, when
// the chain carries one, is fused into the estimate after the
// measurement update.
type KF struct {
	// c is the filtered chain
	c lgssm.Chain
	// init is the chain prior
	init lgssm.InitCond
}

// New creates new KF and returns it.
// It returns error if either of the following conditions is met:
//   - chain dimensions are not positive integers
//   - initial condition does not match the chain state dimension
func New(c lgssm.Chain, init lgssm.InitCond) (*KF, error) {
	nx, ny := c.Dims()
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("invalid chain dimensions: [%d x %d]", nx, ny)
	}

	if init.State().Len() != nx || init.Cov().SymmetricDim() != nx {
		return nil, fmt.Errorf("invalid initial condition dimension: %d", init.State().Len())
	}

	return &KF{c: c, init: init}, nil
}

// Filter runs the forward filtering pass over the first steps columns of y
// and returns the filtered and one-step predicted estimates.
// It returns error if y dimensions do not match the chain or if a
// predicted covariance cannot be inverted.
func (k *KF) Filter(y *mat.Dense, steps int) (*kalman.Filtered, error) {
	nx, ny := k.c.Dims()

	yr, yc := y.Dims()
	if yr != ny || yc < steps {
		return nil, fmt.Errorf("invalid observation matrix dimensions: [%d x %d]", yr, yc)
	}

	if steps <= 0 {
		return nil, fmt.Errorf("invalid number of steps: %d", steps)
	}

	f := &kalman.Filtered{
		Post: make([]*estimate.Base, steps),
		Pred: make([]*estimate.Base, steps),
	}

	m := &mat.VecDense{}
	m.CloneFromVec(k.init.State())
	p := mat.NewSymDense(nx, nil)
	p.CopySym(k.init.Cov())

	for n := 0; n < steps; n++ {
		if n > 0 {
			m, p = k.predict(m, p, n-1)
		}

		pred, err := estimate.NewBaseWithCov(m, p)
		if err != nil {
			return nil, err
		}
		f.Pred[n] = pred

		m, p, err = k.update(m, p, y, n)
		if err != nil {
			return nil, fmt.Errorf("measurement update failed at step %d: %v", n, err)
		}

		m, p, err = k.fuse(m, p, n)
		if err != nil {
			return nil, fmt.Errorf("potential update failed at step %d: %v", n, err)
		}

		post, err := estimate.NewBaseWithCov(m, p)
		if err != nil {
			return nil, err
		}
		f.Post[n] = post
	}

	return f, nil
}

// predict propagates the estimate from step n to step n+1.
func (k *KF) predict(m *mat.VecDense, p *mat.SymDense, n int) (*mat.VecDense, *mat.SymDense) {
	a := k.c.Dynamics(n)

	mNext := &mat.VecDense{}
	mNext.MulVec(a, m)

	cov := &mat.Dense{}
	cov.Mul(a, p)
	cov.Mul(cov, a.T())

	pNext := matrix.Symmetrize(cov)
	q := k.c.ProcessCov(n)
	pNext.AddSym(pNext, q)

	return mNext, pNext
}

// update corrects the predicted estimate with the visible rows of the
// n-th observation column.
func (k *KF) update(m *mat.VecDense, p *mat.SymDense, y *mat.Dense, n int) (*mat.VecDense, *mat.SymDense, error) {
	nx, ny := k.c.Dims()

	obs := k.c.Observed(n)
	rows := make([]int, 0, ny)
	for i := 0; i < ny; i++ {
		if obs == nil || obs[i] {
			rows = append(rows, i)
		}
	}

	// nothing visible at this step
	if len(rows) == 0 {
		return m, p, nil
	}

	c := k.c.Observation(n)
	prec := k.c.ObsPrecision(n)
	if len(prec) != ny {
		return nil, nil, fmt.Errorf("invalid observation precision length: %d", len(prec))
	}

	// visible sub-blocks
	nv := len(rows)
	cv := mat.NewDense(nv, nx, nil)
	yv := mat.NewVecDense(nv, nil)
	rv := mat.NewDiagDense(nv, nil)
	for i, r := range rows {
		for j := 0; j < nx; j++ {
			cv.Set(i, j, c.At(r, j))
		}
		yv.SetVec(i, y.At(r, n))
		if prec[r] <= 0 {
			return nil, nil, fmt.Errorf("invalid observation precision: %f", prec[r])
		}
		rv.SetDiag(i, 1.0/prec[r])
	}

	// innovation covariance S = C*P*C' + R
	cp := &mat.Dense{}
	cp.Mul(cv, p)
	s := &mat.Dense{}
	s.Mul(cp, cv.T())
	s.Add(s, rv)

	sInv := &mat.Dense{}
	if err := sInv.Inverse(s); err != nil {
		return nil, nil, fmt.Errorf("failed to invert innovation covariance: %v", err)
	}

	// Kalman gain K = P*C'*S^-1
	gain := &mat.Dense{}
	gain.Mul(p, cv.T())
	gain.Mul(gain, sInv)

	// innovation vector
	inn := &mat.VecDense{}
	inn.MulVec(cv, m)
	inn.SubVec(yv, inn)

	corr := &mat.VecDense{}
	corr.MulVec(gain, inn)

	mPost := &mat.VecDense{}
	mPost.AddVec(m, corr)

	// Joseph form update
	eye := mat.NewDiagDense(nx, nil)
	for i := 0; i < nx; i++ {
		eye.SetDiag(i, 1.0)
	}
	a := &mat.Dense{}
	a.Mul(gain, cv)
	a.Sub(eye, a)

	ap := &mat.Dense{}
	ap.Mul(a, p)
	apa := &mat.Dense{}
	apa.Mul(ap, a.T())

	kr := &mat.Dense{}
	kr.Mul(gain, rv)
	krk := &mat.Dense{}
	krk.Mul(kr, gain.T())

	apa.Add(apa, krk)

	return mPost, matrix.Symmetrize(apa), nil
}

// fuse folds the extra Gaussian information potential on state n into
// the estimate: the posterior precision gains e and the information
// vector gains h, so P becomes (P^-1 + e)^-1 and m becomes
// (I + P*e)^-1 * (m + P*h).
func (k *KF) fuse(m *mat.VecDense, p *mat.SymDense, n int) (*mat.VecDense, *mat.SymDense, error) {
	e, h := k.c.Potential(n)
	if e == nil && h == nil {
		return m, p, nil
	}

	nx, _ := k.c.Dims()

	mh := &mat.VecDense{}
	mh.CloneFromVec(m)
	if h != nil {
		ph := &mat.VecDense{}
		ph.MulVec(p, h)
		mh.AddVec(mh, ph)
	}

	if e == nil {
		return mh, p, nil
	}

	// T = (I + P*e)^-1, then P = T*P and m = T*(m + P*h)
	pe := &mat.Dense{}
	pe.Mul(p, e)
	for i := 0; i < nx; i++ {
		pe.Set(i, i, pe.At(i, i)+1.0)
	}

	t := &mat.Dense{}
	if err := t.Inverse(pe); err != nil {
		return nil, nil, fmt.Errorf("failed to invert potential precision: %v", err)
	}

	mNew := &mat.VecDense{}
	mNew.MulVec(t, mh)

	tp := &mat.Dense{}
	tp.Mul(t, p)

	return mNew, matrix.Symmetrize(tp), nil
}
