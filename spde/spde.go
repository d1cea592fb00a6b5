// Package spde assembles the SPDE precision matrix
//
//	Q(κ²) = κ²·C + 2·G + GᵀC⁻¹G/κ²
//
// from fixed mass-like and stiffness-like building blocks, and evaluates its
// log-determinant with a sparse LDLᵀ factorization.
package spde

import (
	"errors"
	"fmt"
	"sync"

	"github.com/n0madic/go-spde-em/sparse"
)

var (
	// ErrNonPositiveKappa is returned for κ² ≤ 0 (or NaN).
	ErrNonPositiveKappa = errors.New("spde: kappa2 must be positive")

	// ErrPriorShape is returned when C, G and GtCinvG are not square matrices
	// of one common dimension.
	ErrPriorShape = errors.New("spde: prior matrices must be square with equal dimensions")

	// ErrLength is returned when a coefficient vector is not a whole number of
	// sessions long.
	ErrLength = errors.New("spde: coefficient vector length mismatch")
)

// Prior holds the three building blocks of the SPDE precision. It is
// immutable after construction and safe for concurrent use.
type Prior struct {
	c, g, gcg *sparse.CSC
	n         int

	pattern *sparse.CSC // union of the three patterns, zero valued
	sym     *sparse.Symbolic
	factors sync.Pool // *sparse.Cholesky bound to sym
}

// Option configures a Prior.
type Option func(*priorConfig)

type priorConfig struct {
	ordering sparse.Ordering
}

// WithOrdering sets the fill-reducing ordering used for log-determinants.
func WithOrdering(ord sparse.Ordering) Option {
	return func(c *priorConfig) {
		c.ordering = ord
	}
}

// NewPrior validates the building blocks and runs the symbolic analysis of
// the precision pattern, which does not depend on κ².
func NewPrior(c, g, gtCinvG *sparse.CSC, options ...Option) (*Prior, error) {
	if c == nil || g == nil || gtCinvG == nil {
		return nil, fmt.Errorf("NewPrior: nil matrix: %w", ErrPriorShape)
	}
	cfg := priorConfig{ordering: sparse.ReverseCuthillMcKee}
	for _, opt := range options {
		opt(&cfg)
	}

	n, nc := c.Dims()
	for _, m := range []*sparse.CSC{c, g, gtCinvG} {
		r, cc := m.Dims()
		if r != n || cc != nc || r != cc {
			return nil, fmt.Errorf("NewPrior: %dx%d block with %dx%d mass matrix: %w", r, cc, n, nc, ErrPriorShape)
		}
	}

	pattern, err := sparse.Add(1, c, 1, g)
	if err != nil {
		return nil, err
	}
	if pattern, err = sparse.Add(1, pattern, 1, gtCinvG); err != nil {
		return nil, err
	}
	pattern.Zero()

	sym, err := sparse.Analyze(pattern, cfg.ordering)
	if err != nil {
		return nil, err
	}

	p := &Prior{c: c, g: g, gcg: gtCinvG, n: n, pattern: pattern, sym: sym}
	p.factors.New = func() any {
		return sparse.NewCholesky(p.sym)
	}
	return p, nil
}

// N returns the number of mesh vertices.
func (p *Prior) N() int { return p.n }

// C returns the mass-like matrix.
func (p *Prior) C() *sparse.CSC { return p.c }

// G returns the stiffness-like matrix.
func (p *Prior) G() *sparse.CSC { return p.g }

// GtCinvG returns the GᵀC⁻¹G matrix.
func (p *Prior) GtCinvG() *sparse.CSC { return p.gcg }

// Precision returns Q(κ²) on the union pattern of the building blocks.
func (p *Prior) Precision(kappa2 float64) (*sparse.CSC, error) {
	if !(kappa2 > 0) {
		return nil, fmt.Errorf("Precision: kappa2=%g: %w", kappa2, ErrNonPositiveKappa)
	}
	q := p.pattern.Clone()
	if err := q.AddScaled(kappa2, p.c); err != nil {
		return nil, err
	}
	if err := q.AddScaled(2, p.g); err != nil {
		return nil, err
	}
	if err := q.AddScaled(1/kappa2, p.gcg); err != nil {
		return nil, err
	}
	return q, nil
}

// LogDetQt returns nSess·log|Q(κ²)|, i.e. nSess·Σ log D_ii of the LDLᵀ
// factor. It fails with sparse.ErrNotPositiveDefinite when Q(κ²) is not
// positive definite.
func (p *Prior) LogDetQt(kappa2 float64, nSess int) (float64, error) {
	q, err := p.Precision(kappa2)
	if err != nil {
		return 0, err
	}
	chol := p.factors.Get().(*sparse.Cholesky)
	defer p.factors.Put(chol)

	if err := chol.Factorize(q); err != nil {
		return 0, fmt.Errorf("LogDetQt: kappa2=%g: %w", kappa2, err)
	}
	logDet, err := chol.LogDet()
	if err != nil {
		return 0, err
	}
	return float64(nSess) * logDet, nil
}

// MakeQt writes Q(κ²) coefficient-wise into the top-left block of dst. dst
// must already hold a slot for every entry of the precision pattern; its
// pattern is never changed.
func (p *Prior) MakeQt(dst *sparse.CSC, kappa2 float64) error {
	return p.StampQt(dst, kappa2, 1, 0)
}

// StampQt writes scale·Q(κ²) into the diagonal block of dst starting at
// (offset, offset), leaving the pattern of dst unchanged.
func (p *Prior) StampQt(dst *sparse.CSC, kappa2, scale float64, offset int) error {
	q, err := p.Precision(kappa2)
	if err != nil {
		return err
	}
	return dst.SetBlockScaled(offset, offset, scale, q)
}

// QuadForm returns Σₛ wₛᵀ·Q(κ²)·wₛ over the nSess consecutive session
// segments of w.
func (p *Prior) QuadForm(kappa2 float64, w []float64, nSess int) (float64, error) {
	if nSess <= 0 || len(w) != p.n*nSess {
		return 0, fmt.Errorf("QuadForm: len(w)=%d, n=%d, sessions=%d: %w", len(w), p.n, nSess, ErrLength)
	}
	q, err := p.Precision(kappa2)
	if err != nil {
		return 0, err
	}
	var s float64
	for ns := 0; ns < nSess; ns++ {
		s += q.QuadForm(w[ns*p.n : (ns+1)*p.n])
	}
	return s, nil
}
