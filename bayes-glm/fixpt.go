package bayesglm

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-spde-em/brent"
	"github.com/n0madic/go-spde-em/sparse"
	"github.com/n0madic/go-spde-em/spde"
)

// emState is the working storage of one FindTheta run. qk, sigInv and chol
// are rewritten by every evaluation, so a state must not be shared between
// concurrent runs.
type emState struct {
	prior             *spde.Prior
	cfg               config
	nTasks, nSess, n  int
	phiDenom, nProbes float64

	y     []float64
	yy    float64
	xpsi  *sparse.CSC
	xpsiY []float64
	a     *sparse.CSC
	vh    *mat.Dense
	avh   *mat.Dense

	qk       *sparse.CSC
	sigInv   *sparse.CSC // pattern of QK + A
	chol     *sparse.Cholesky
	analyses int

	rhs    []float64
	xpsiMu []float64
}

// taskStats are the sufficient statistics of one task's M-step, summed over
// sessions: quadratic forms of the posterior mean and Hutchinson estimates of
// the matching traces against Σ.
type taskStats struct {
	muCmu, muGmu, muGCGmu float64
	trC, trG, trGCG       float64
}

// stamp writes Q(κ²_k)/(4πφ_k) into every session block of task k.
func (s *emState) stamp(theta []float64) error {
	for k := 0; k < s.nTasks; k++ {
		q, err := s.prior.Precision(theta[k])
		if err != nil {
			return err
		}
		scale := priorScale(theta[s.nTasks+k])
		for ns := 0; ns < s.nSess; ns++ {
			off := taskOffset(k, ns, s.nTasks, s.n)
			if err := s.qk.SetBlockScaled(off, off, scale, q); err != nil {
				return err
			}
		}
	}
	return nil
}

// posterior refactorizes Σ⁻¹ = QK + A/σ² and solves Σ⁻¹μ = (XΨ)ᵀy/σ².
func (s *emState) posterior(sigma2 float64, mu []float64) error {
	s.sigInv.Zero()
	if err := s.sigInv.AddScaled(1, s.qk); err != nil {
		return err
	}
	if err := s.sigInv.AddScaled(1/sigma2, s.a); err != nil {
		return err
	}
	err := s.chol.Factorize(s.sigInv)
	s.cfg.metrics.factorized(err)
	if err != nil {
		return &SingularError{Stage: "posterior", Cause: err}
	}
	for i, v := range s.xpsiY {
		s.rhs[i] = v / sigma2
	}
	return s.chol.SolveVecTo(mu, s.rhs)
}

// fixpt is one EM update θ → θ'.
func (s *emState) fixpt(theta []float64) ([]float64, error) {
	s.cfg.metrics.evaluated(mapEM)
	for i, v := range theta {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: entry %d = %g", ErrInvalidTheta, i, v)
		}
	}
	K := s.nTasks
	sigma2 := theta[2*K]

	if err := s.stamp(theta); err != nil {
		return nil, err
	}
	mu := make([]float64, len(s.xpsiY))
	if err := s.posterior(sigma2, mu); err != nil {
		return nil, err
	}

	// P = Σ·Vh, so mean_j (P_jᵀ·A·Vh_j) estimates Tr(Σ·A).
	p, err := s.chol.SolveDense(s.vh)
	if err != nil {
		return nil, err
	}
	var pav mat.Dense
	pav.MulElem(p, s.avh)
	trSigA := mat.Sum(&pav) / s.nProbes

	s.xpsi.MulVecTo(s.xpsiMu, mu)
	muAmu := s.a.QuadForm(mu)
	yXpsiMu := floats.Dot(s.y, s.xpsiMu)

	out := make([]float64, len(theta))
	out[2*K] = (s.yy - 2*yXpsiMu + muAmu + trSigA) / float64(len(s.y))

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for k := 0; k < K; k++ {
		g.Go(func() error {
			return s.updateTask(k, theta, mu, p, out)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.cfg.logger.Debug().Floats64("theta", out).Msg("em update")
	return out, nil
}

// updateTask writes the new κ²_k and φ_k into out. It reads only shared
// inputs and writes only the two slots of task k.
func (s *emState) updateTask(k int, theta, mu []float64, p *mat.Dense, out []float64) error {
	K := s.nTasks
	st := s.taskStats(k, mu, p)
	scale := priorScale(theta[K+k])
	aStar := (st.muCmu + st.trC) * scale
	bStar := (st.muGCGmu + st.trGCG) * scale

	obj := func(kappa2 float64) (float64, error) {
		s.cfg.metrics.objectiveEvaluated()
		logDet, err := s.prior.LogDetQt(kappa2, s.nSess)
		if err != nil {
			return 0, &SingularError{Stage: "kappa2", Cause: err}
		}
		return aStar*kappa2 + bStar/kappa2 - logDet, nil
	}
	best, err := brent.Minimize(obj, 0, kappa2Upper, s.cfg.brentTol())
	if err != nil {
		return fmt.Errorf("task %d: %w", k, err)
	}

	kappa2 := best.X
	out[k] = kappa2
	out[K+k] = (kappa2*(st.trC+st.muCmu) + 2*(st.trG+st.muGmu) + (st.trGCG+st.muGCGmu)/kappa2) / s.phiDenom
	return nil
}

func (s *emState) taskStats(k int, mu []float64, p *mat.Dense) taskStats {
	var st taskStats
	c, g, gcg := s.prior.C(), s.prior.G(), s.prior.GtCinvG()
	_, cols := s.vh.Dims()
	for ns := 0; ns < s.nSess; ns++ {
		off := taskOffset(k, ns, s.nTasks, s.n)
		m := mu[off : off+s.n]
		st.muCmu += c.QuadForm(m)
		st.muGmu += g.QuadForm(m)
		st.muGCGmu += gcg.QuadForm(m)

		pk := p.Slice(off, off+s.n, 0, cols)
		vk := s.vh.Slice(off, off+s.n, 0, cols)
		st.trC += hutchinson(pk, c, vk)
		st.trG += hutchinson(pk, g, vk)
		st.trGCG += hutchinson(pk, gcg, vk)
	}
	st.trC /= s.nProbes
	st.trG /= s.nProbes
	st.trGCG /= s.nProbes
	return st
}

// hutchinson returns Σⱼ pⱼᵀ·M·vⱼ over the columns of p and v.
func hutchinson(p mat.Matrix, m *sparse.CSC, v mat.Matrix) float64 {
	mv := m.MulDense(v)
	var h mat.Dense
	h.MulElem(p, mv)
	return mat.Sum(&h)
}
