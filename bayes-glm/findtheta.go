// Package bayesglm estimates the hyperparameters of a spatial Bayesian GLM
// with an SPDE prior on every task's coefficient field.
//
// The hyperparameter vector is θ = (κ²₁..κ²_K, φ₁..φ_K, σ²). Coefficients are
// laid out session major with tasks within a session, so the block of task k
// in session s starts at row (s·K + k)·n for a mesh of n vertices.
package bayesglm

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-spde-em/sparse"
	"github.com/n0madic/go-spde-em/spde"
	"github.com/n0madic/go-spde-em/squarem"
)

// Data are the observations and design of one estimation.
type Data struct {
	Y   []float64
	X   *sparse.CSC // design, len(Y) rows
	Psi *sparse.CSC // basis mapping data locations to mesh vertices
	A   *sparse.CSC // (XΨ)ᵀ(XΨ); computed when nil

	// QK is the joint prior precision, used as working storage and
	// overwritten in place by FindTheta. It must hold a slot for every entry
	// of each Q(κ²) block. When nil it is built with NewJointPrecision.
	QK *sparse.CSC

	Vh *mat.Dense // ±1 Hutchinson probes, one row per coefficient
}

// Result is the outcome of FindTheta.
type Result struct {
	Theta  []float64
	Kappa2 []float64
	Phi    []float64
	Sigma2 float64
	Mu     []float64 // posterior mean at Theta

	Converged        bool
	Iterations       int
	Evaluations      int
	SymbolicAnalyses int
	Factorizations   int
}

// FindTheta runs the accelerated EM iteration from theta0 and returns the
// hyperparameters together with the posterior mean at the final iterate.
//
// The pattern of Σ⁻¹ = QK + A/σ² does not depend on θ, so it is analysed
// exactly once per run and every EM step only refactorizes numerically.
// Exhausting the evaluation budget is reported through Result.Converged. A
// failing factorization aborts the run: before the first successful update
// the Result is nil, afterwards it carries the last iterate without Mu.
func FindTheta(theta0 []float64, prior *spde.Prior, data Data, options ...Option) (*Result, error) {
	cfg, err := newConfig(options)
	if err != nil {
		return nil, err
	}
	s, err := newEMState(theta0, prior, data, cfg)
	if err != nil {
		return nil, err
	}
	log := cfg.logger
	K := s.nTasks

	theta := make([]float64, len(theta0))
	copy(theta, theta0)
	if cfg.initW != nil {
		if err := s.initialize(theta); err != nil {
			return nil, err
		}
	}

	if err := s.prepare(theta); err != nil {
		return nil, err
	}

	mu := make([]float64, len(s.xpsiY))
	if err := s.posterior(theta[2*K], mu); err != nil {
		return nil, err
	}

	log.Info().Floats64("theta", theta).Msg("initial theta")
	res, err := squarem.Accelerate(s.fixpt, theta, cfg.squaremOptions()...)
	cfg.metrics.finished(mapEM, res != nil && res.Converged, err)
	if err != nil {
		if res == nil {
			return nil, fmt.Errorf("bayesglm: EM: %w", err)
		}
		out := newResult(res.Par, nil, K)
		out.Iterations, out.Evaluations = res.Iterations, res.Evaluations
		out.SymbolicAnalyses, out.Factorizations = s.analyses, s.chol.Factorizations()
		return out, fmt.Errorf("bayesglm: EM: %w", err)
	}

	// QK still holds the last evaluated iterate, which need not be res.Par.
	if err := s.stamp(res.Par); err != nil {
		return nil, err
	}
	if err := s.posterior(res.Par[2*K], mu); err != nil {
		return nil, err
	}
	log.Info().
		Floats64("theta", res.Par).
		Bool("converged", res.Converged).
		Int("evaluations", res.Evaluations).
		Msg("final theta")

	out := newResult(res.Par, mu, K)
	out.Converged = res.Converged
	out.Iterations, out.Evaluations = res.Iterations, res.Evaluations
	out.SymbolicAnalyses, out.Factorizations = s.analyses, s.chol.Factorizations()
	return out, nil
}

func newResult(theta, mu []float64, K int) *Result {
	return &Result{
		Theta:  theta,
		Kappa2: append([]float64(nil), theta[:K]...),
		Phi:    append([]float64(nil), theta[K:2*K]...),
		Sigma2: theta[2*K],
		Mu:     mu,
	}
}

// newEMState validates the inputs and precomputes XΨ, (XΨ)ᵀy, yᵀy and A·Vh.
func newEMState(theta0 []float64, prior *spde.Prior, data Data, cfg config) (*emState, error) {
	if prior == nil {
		return nil, invalid("prior", "nil")
	}
	K, err := taskCount(theta0)
	if err != nil {
		return nil, err
	}
	if data.X == nil || data.Psi == nil {
		return nil, invalid("X", "design and basis matrices are required")
	}
	if len(data.Y) == 0 {
		return nil, invalid("Y", "empty")
	}
	if xr, _ := data.X.Dims(); xr != len(data.Y) {
		return nil, invalid("X", "%d rows for %d observations", xr, len(data.Y))
	}
	xpsi, err := sparse.Mul(data.X, data.Psi)
	if err != nil {
		return nil, invalid("Psi", "%v", err)
	}
	n := prior.N()
	_, nKs := xpsi.Dims()
	if nKs == 0 || nKs%(n*K) != 0 {
		return nil, invalid("Psi", "%d columns is not a multiple of %d vertices × %d tasks", nKs, n, K)
	}

	a := data.A
	if a == nil {
		if a, err = sparse.Mul(xpsi.Transpose(), xpsi); err != nil {
			return nil, err
		}
	} else if ar, ac := a.Dims(); ar != nKs || ac != nKs {
		return nil, invalid("A", "%dx%d, want %dx%d", ar, ac, nKs, nKs)
	}
	if data.QK != nil {
		if qr, qc := data.QK.Dims(); qr != nKs || qc != nKs {
			return nil, invalid("QK", "%dx%d, want %dx%d", qr, qc, nKs, nKs)
		}
	}
	if data.Vh == nil {
		return nil, invalid("Vh", "probe matrix is required")
	}
	vr, vc := data.Vh.Dims()
	if vr != nKs || vc == 0 {
		return nil, invalid("Vh", "%dx%d, want %d rows and at least one column", vr, vc, nKs)
	}
	if initW := cfg.initW; initW != nil && len(initW) != nKs {
		return nil, invalid("initial coefficients", "length %d, want %d", len(initW), nKs)
	}

	nSess := nKs / (n * K)
	s := &emState{
		prior:    prior,
		cfg:      cfg,
		nTasks:   K,
		nSess:    nSess,
		n:        n,
		phiDenom: 4 * math.Pi * float64(n*nSess),
		nProbes:  float64(vc),
		y:        data.Y,
		yy:       floats.Dot(data.Y, data.Y),
		xpsi:     xpsi,
		xpsiY:    make([]float64, nKs),
		a:        a,
		vh:       data.Vh,
		avh:      a.MulDense(data.Vh),
		qk:       data.QK,
		rhs:      make([]float64, nKs),
		xpsiMu:   make([]float64, len(data.Y)),
	}
	xpsi.MulTransVecTo(s.xpsiY, data.Y)
	return s, nil
}

// prepare stamps QK at theta, building it first when the caller supplied
// none, and analyses the pattern of Σ⁻¹.
func (s *emState) prepare(theta []float64) error {
	var err error
	if s.qk == nil {
		if s.qk, err = NewJointPrecision(s.prior, theta, s.nSess); err != nil {
			return err
		}
	} else if err := s.stamp(theta); err != nil {
		return invalid("QK", "%v", err)
	}

	if s.sigInv, err = sparse.Add(1, s.qk, 1/theta[2*s.nTasks], s.a); err != nil {
		return err
	}
	sym, err := sparse.Analyze(s.sigInv, s.cfg.ordering())
	if err != nil {
		return err
	}
	s.analyses++
	s.chol = sparse.NewCholesky(sym)
	s.cfg.logger.Debug().
		Int("dim", sym.N()).
		Int("factor_nnz", sym.FactorNNZ()).
		Stringer("ordering", sym.Ordering()).
		Msg("posterior pattern analysed")
	return nil
}

// initialize replaces each task's (κ², φ) in theta with the InitialKP
// estimate from the task's slice of the initial coefficients.
func (s *emState) initialize(theta []float64) error {
	K := s.nTasks
	w := make([]float64, s.n*s.nSess)
	for k := 0; k < K; k++ {
		for ns := 0; ns < s.nSess; ns++ {
			off := taskOffset(k, ns, K, s.n)
			copy(w[ns*s.n:(ns+1)*s.n], s.cfg.initW[off:off+s.n])
		}
		res, err := initialKP([2]float64{theta[k], theta[K+k]}, s.prior, w, s.nSess, s.cfg)
		if err != nil {
			return fmt.Errorf("task %d: %w", k, err)
		}
		if !res.Converged {
			s.cfg.logger.Warn().Int("task", k).Int("evaluations", res.Evaluations).Msg("initialization did not converge")
		}
		theta[k], theta[K+k] = res.Kappa2, res.Phi
	}
	return nil
}

const resultStateVersion = 1

// resultState is the serialized form of a Result.
type resultState struct {
	Version          int
	Theta            []float64
	Mu               []float64
	Converged        bool
	Iterations       int
	Evaluations      int
	SymbolicAnalyses int
	Factorizations   int
}

// Save writes r in gob format.
func (r *Result) Save(w io.Writer) error {
	state := resultState{
		Version:          resultStateVersion,
		Theta:            r.Theta,
		Mu:               r.Mu,
		Converged:        r.Converged,
		Iterations:       r.Iterations,
		Evaluations:      r.Evaluations,
		SymbolicAnalyses: r.SymbolicAnalyses,
		Factorizations:   r.Factorizations,
	}
	return gob.NewEncoder(w).Encode(state)
}

// LoadResult reads a Result written by Save.
func LoadResult(r io.Reader) (*Result, error) {
	var state resultState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return nil, fmt.Errorf("bayesglm: decode result: %w", err)
	}
	if state.Version != resultStateVersion {
		return nil, errors.New("bayesglm: unsupported result version")
	}
	K, err := taskCount(state.Theta)
	if err != nil {
		return nil, err
	}
	out := newResult(state.Theta, state.Mu, K)
	out.Converged = state.Converged
	out.Iterations = state.Iterations
	out.Evaluations = state.Evaluations
	out.SymbolicAnalyses = state.SymbolicAnalyses
	out.Factorizations = state.Factorizations
	return out, nil
}
