package sparse

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Symbolic holds the pattern-only part of an LDLᵀ factorization: the
// ordering, the elimination tree and the column counts of L. It depends only
// on the nonzero pattern of the analysed matrix and is immutable, so a single
// Symbolic can serve any number of numeric factors, concurrently.
type Symbolic struct {
	n        int
	ordering Ordering
	perm     []int // perm[k] = original index at position k
	pinv     []int // inverse of perm
	parent   []int // elimination tree
	lp       []int // column pointers of L
	colPtr   []int // analysed pattern
	rowIdx   []int
}

// Analyze computes the symbolic factorization of the symmetric matrix a.
// a must be stored with both triangles; only the pattern is read.
func Analyze(a *CSC, ord Ordering) (*Symbolic, error) {
	if a.r != a.c {
		return nil, fmt.Errorf("Analyze: %dx%d: %w", a.r, a.c, ErrNotSquare)
	}
	n := a.c
	s := &Symbolic{
		n:        n,
		ordering: ord,
		perm:     ord.Permutation(a),
		pinv:     make([]int, n),
		parent:   make([]int, n),
		lp:       make([]int, n+1),
		colPtr:   make([]int, len(a.colPtr)),
		rowIdx:   make([]int, len(a.rowIdx)),
	}
	copy(s.colPtr, a.colPtr)
	copy(s.rowIdx, a.rowIdx)
	for k, i := range s.perm {
		s.pinv[i] = k
	}

	lnz := make([]int, n)
	flag := make([]int, n)
	for k := 0; k < n; k++ {
		s.parent[k] = -1
		flag[k] = k
		kk := s.perm[k]
		for p := a.colPtr[kk]; p < a.colPtr[kk+1]; p++ {
			i := s.pinv[a.rowIdx[p]]
			if i >= k {
				continue
			}
			for ; flag[i] != k; i = s.parent[i] {
				if s.parent[i] == -1 {
					s.parent[i] = k
				}
				lnz[i]++
				flag[i] = k
			}
		}
	}
	for k := 0; k < n; k++ {
		s.lp[k+1] = s.lp[k] + lnz[k]
	}
	return s, nil
}

// N returns the dimension of the analysed matrix.
func (s *Symbolic) N() int { return s.n }

// Ordering returns the ordering used by the analysis.
func (s *Symbolic) Ordering() Ordering { return s.ordering }

// FactorNNZ returns the number of strictly lower entries of L.
func (s *Symbolic) FactorNNZ() int { return s.lp[s.n] }

// Matches reports whether a has exactly the analysed pattern.
func (s *Symbolic) Matches(a *CSC) bool {
	if a.r != s.n || a.c != s.n || len(a.rowIdx) != len(s.rowIdx) {
		return false
	}
	for j, p := range s.colPtr {
		if a.colPtr[j] != p {
			return false
		}
	}
	for p, i := range s.rowIdx {
		if a.rowIdx[p] != i {
			return false
		}
	}
	return true
}

// Cholesky is a numeric LDLᵀ factorization bound to one Symbolic. Factorize
// may be called repeatedly with new values; no symbolic work is repeated.
// A Cholesky is not safe for concurrent use.
type Cholesky struct {
	sym *Symbolic

	li []int
	lx []float64
	d  []float64

	// workspace
	lnz     []int
	y       []float64
	pattern []int
	flag    []int

	valid          bool
	factorizations int
}

// NewCholesky allocates a numeric factor for matrices analysed by sym.
func NewCholesky(sym *Symbolic) *Cholesky {
	n := sym.n
	return &Cholesky{
		sym:     sym,
		li:      make([]int, sym.lp[n]),
		lx:      make([]float64, sym.lp[n]),
		d:       make([]float64, n),
		lnz:     make([]int, n),
		y:       make([]float64, n),
		pattern: make([]int, n),
		flag:    make([]int, n),
	}
}

// Compute analyses and factorizes a in one step.
func Compute(a *CSC, ord Ordering) (*Cholesky, error) {
	sym, err := Analyze(a, ord)
	if err != nil {
		return nil, err
	}
	c := NewCholesky(sym)
	if err := c.Factorize(a); err != nil {
		return nil, err
	}
	return c, nil
}

// Symbolic returns the analysis the factor is bound to.
func (c *Cholesky) Symbolic() *Symbolic { return c.sym }

// Factorizations returns how many numeric factorizations were attempted.
func (c *Cholesky) Factorizations() int { return c.factorizations }

// Factorize computes the numeric factorization of a, which must have the
// analysed pattern. A non-positive pivot yields ErrNotPositiveDefinite and
// leaves the factor invalid.
func (c *Cholesky) Factorize(a *CSC) error {
	c.factorizations++
	c.valid = false
	s := c.sym
	if !s.Matches(a) {
		return ErrPatternMismatch
	}
	n := s.n
	for k := 0; k < n; k++ {
		c.y[k] = 0
		top := n
		c.flag[k] = k
		c.lnz[k] = 0
		kk := s.perm[k]
		for p := a.colPtr[kk]; p < a.colPtr[kk+1]; p++ {
			i := s.pinv[a.rowIdx[p]]
			if i > k {
				continue
			}
			c.y[i] += a.values[p]
			length := 0
			for ; c.flag[i] != k; i = s.parent[i] {
				c.pattern[length] = i
				length++
				c.flag[i] = k
			}
			for length > 0 {
				top--
				length--
				c.pattern[top] = c.pattern[length]
			}
		}
		c.d[k] = c.y[k]
		c.y[k] = 0
		for ; top < n; top++ {
			i := c.pattern[top]
			yi := c.y[i]
			c.y[i] = 0
			p2 := s.lp[i] + c.lnz[i]
			for p := s.lp[i]; p < p2; p++ {
				c.y[c.li[p]] -= c.lx[p] * yi
			}
			lki := yi / c.d[i]
			c.d[k] -= lki * yi
			c.li[p2] = k
			c.lx[p2] = lki
			c.lnz[i]++
		}
		if !(c.d[k] > 0) || math.IsInf(c.d[k], 0) {
			for j := k + 1; j < n; j++ {
				c.y[j] = 0
			}
			return fmt.Errorf("Factorize: pivot %d = %g: %w", k, c.d[k], ErrNotPositiveDefinite)
		}
	}
	c.valid = true
	return nil
}

// D returns a copy of the diagonal factor in elimination order.
func (c *Cholesky) D() []float64 {
	out := make([]float64, len(c.d))
	copy(out, c.d)
	return out
}

// LogDet returns log|A| = Σ log D_ii.
func (c *Cholesky) LogDet() (float64, error) {
	if !c.valid {
		return 0, ErrNotFactorized
	}
	var s float64
	for _, v := range c.d {
		s += math.Log(v)
	}
	return s, nil
}

// SolveVecTo solves A*x = b and stores x in dst. dst and b may alias.
func (c *Cholesky) SolveVecTo(dst, b []float64) error {
	if !c.valid {
		return ErrNotFactorized
	}
	if len(b) != c.sym.n || len(dst) != c.sym.n {
		return ErrDimensionMismatch
	}
	c.solve(dst, b, make([]float64, c.sym.n))
	return nil
}

// SolveDense solves A*X = B column by column.
func (c *Cholesky) SolveDense(b mat.Matrix) (*mat.Dense, error) {
	if !c.valid {
		return nil, ErrNotFactorized
	}
	n := c.sym.n
	br, bc := b.Dims()
	if br != n {
		return nil, ErrDimensionMismatch
	}
	out := mat.NewDense(n, bc, nil)
	col := make([]float64, n)
	x := make([]float64, n)
	for k := 0; k < bc; k++ {
		mat.Col(col, k, b)
		c.solve(col, col, x)
		out.SetCol(k, col)
	}
	return out, nil
}

func (c *Cholesky) solve(dst, b, x []float64) {
	s := c.sym
	n := s.n
	for k := 0; k < n; k++ {
		x[k] = b[s.perm[k]]
	}
	for j := 0; j < n; j++ {
		xj := x[j]
		for p := s.lp[j]; p < s.lp[j+1]; p++ {
			x[c.li[p]] -= c.lx[p] * xj
		}
	}
	for j := 0; j < n; j++ {
		x[j] /= c.d[j]
	}
	for j := n - 1; j >= 0; j-- {
		xj := x[j]
		for p := s.lp[j]; p < s.lp[j+1]; p++ {
			xj -= c.lx[p] * x[c.li[p]]
		}
		x[j] = xj
	}
	for k := 0; k < n; k++ {
		dst[s.perm[k]] = x[k]
	}
}
