package sparse

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Identity returns the n×n identity.
func Identity(n int) (*CSC, error) {
	d := make([]float64, n)
	for i := range d {
		d[i] = 1
	}
	return Diag(d)
}

// Diag returns a square matrix with d on its diagonal. Zero entries of d are
// stored explicitly.
func Diag(d []float64) (*CSC, error) {
	n := len(d)
	if n == 0 {
		return nil, ErrShape
	}
	colPtr := make([]int, n+1)
	rowIdx := make([]int, n)
	values := make([]float64, n)
	for i, v := range d {
		colPtr[i+1] = i + 1
		rowIdx[i] = i
		values[i] = v
	}
	return &CSC{r: n, c: n, colPtr: colPtr, rowIdx: rowIdx, values: values}, nil
}

// BlockDiag stacks the given matrices along the diagonal.
func BlockDiag(blocks ...*CSC) (*CSC, error) {
	if len(blocks) == 0 {
		return nil, ErrShape
	}
	var r, c, nnz int
	for _, b := range blocks {
		r += b.r
		c += b.c
		nnz += b.NNZ()
	}
	out := &CSC{
		r:      r,
		c:      c,
		colPtr: make([]int, 0, c+1),
		rowIdx: make([]int, 0, nnz),
		values: make([]float64, 0, nnz),
	}
	out.colPtr = append(out.colPtr, 0)
	var r0 int
	for _, b := range blocks {
		for j := 0; j < b.c; j++ {
			for p := b.colPtr[j]; p < b.colPtr[j+1]; p++ {
				out.rowIdx = append(out.rowIdx, b.rowIdx[p]+r0)
				out.values = append(out.values, b.values[p])
			}
			out.colPtr = append(out.colPtr, len(out.rowIdx))
		}
		r0 += b.r
	}
	return out, nil
}

// Add returns alpha*a + beta*b. The result pattern is the union of both
// patterns, including entries that cancel numerically.
func Add(alpha float64, a *CSC, beta float64, b *CSC) (*CSC, error) {
	if a.r != b.r || a.c != b.c {
		return nil, fmt.Errorf("Add: %dx%d and %dx%d: %w", a.r, a.c, b.r, b.c, ErrDimensionMismatch)
	}
	out := &CSC{
		r:      a.r,
		c:      a.c,
		colPtr: make([]int, a.c+1),
		rowIdx: make([]int, 0, a.NNZ()+b.NNZ()),
		values: make([]float64, 0, a.NNZ()+b.NNZ()),
	}
	for j := 0; j < a.c; j++ {
		pa, ea := a.colPtr[j], a.colPtr[j+1]
		pb, eb := b.colPtr[j], b.colPtr[j+1]
		for pa < ea || pb < eb {
			switch {
			case pb >= eb || (pa < ea && a.rowIdx[pa] < b.rowIdx[pb]):
				out.rowIdx = append(out.rowIdx, a.rowIdx[pa])
				out.values = append(out.values, alpha*a.values[pa])
				pa++
			case pa >= ea || b.rowIdx[pb] < a.rowIdx[pa]:
				out.rowIdx = append(out.rowIdx, b.rowIdx[pb])
				out.values = append(out.values, beta*b.values[pb])
				pb++
			default:
				out.rowIdx = append(out.rowIdx, a.rowIdx[pa])
				out.values = append(out.values, alpha*a.values[pa]+beta*b.values[pb])
				pa++
				pb++
			}
		}
		out.colPtr[j+1] = len(out.rowIdx)
	}
	return out, nil
}

// AddScaled accumulates alpha*b into m in place. Every stored entry of b must
// have a slot in m.
func (m *CSC) AddScaled(alpha float64, b *CSC) error {
	if m.r != b.r || m.c != b.c {
		return fmt.Errorf("AddScaled: %dx%d and %dx%d: %w", m.r, m.c, b.r, b.c, ErrDimensionMismatch)
	}
	for j := 0; j < b.c; j++ {
		p, end := m.colPtr[j], m.colPtr[j+1]
		for q := b.colPtr[j]; q < b.colPtr[j+1]; q++ {
			i := b.rowIdx[q]
			for p < end && m.rowIdx[p] < i {
				p++
			}
			if p == end || m.rowIdx[p] != i {
				return fmt.Errorf("AddScaled: entry (%d,%d): %w", i, j, ErrPatternViolation)
			}
			m.values[p] += alpha * b.values[q]
		}
	}
	return nil
}

// SetBlock overwrites the entries of m covered by b, placed with its top-left
// corner at (i0, j0). Only existing slots are written, so the pattern of m is
// unchanged; slots of m inside the block that b does not store keep their
// values.
func (m *CSC) SetBlock(i0, j0 int, b *CSC) error {
	return m.setBlockScaled(i0, j0, 1, b)
}

func (m *CSC) setBlockScaled(i0, j0 int, scale float64, b *CSC) error {
	if i0 < 0 || j0 < 0 || i0+b.r > m.r || j0+b.c > m.c {
		return fmt.Errorf("SetBlock: %dx%d block at (%d,%d) in %dx%d: %w", b.r, b.c, i0, j0, m.r, m.c, ErrDimensionMismatch)
	}
	for j := 0; j < b.c; j++ {
		col := j0 + j
		p, end := m.colPtr[col], m.colPtr[col+1]
		for q := b.colPtr[j]; q < b.colPtr[j+1]; q++ {
			i := i0 + b.rowIdx[q]
			for p < end && m.rowIdx[p] < i {
				p++
			}
			if p == end || m.rowIdx[p] != i {
				return fmt.Errorf("SetBlock: entry (%d,%d): %w", i, col, ErrPatternViolation)
			}
			m.values[p] = scale * b.values[q]
		}
	}
	return nil
}

// SetBlockScaled is SetBlock writing scale*b.
func (m *CSC) SetBlockScaled(i0, j0 int, scale float64, b *CSC) error {
	return m.setBlockScaled(i0, j0, scale, b)
}

// Transpose returns the explicit transpose of m.
func (m *CSC) Transpose() *CSC {
	out := &CSC{
		r:      m.c,
		c:      m.r,
		colPtr: make([]int, m.r+1),
		rowIdx: make([]int, m.NNZ()),
		values: make([]float64, m.NNZ()),
	}
	for _, i := range m.rowIdx {
		out.colPtr[i+1]++
	}
	for i := 0; i < m.r; i++ {
		out.colPtr[i+1] += out.colPtr[i]
	}
	next := make([]int, m.r)
	copy(next, out.colPtr[:m.r])
	for j := 0; j < m.c; j++ {
		for p := m.colPtr[j]; p < m.colPtr[j+1]; p++ {
			q := next[m.rowIdx[p]]
			out.rowIdx[q] = j
			out.values[q] = m.values[p]
			next[m.rowIdx[p]]++
		}
	}
	return out
}

// Mul returns the sparse product a*b.
func Mul(a, b *CSC) (*CSC, error) {
	if a.c != b.r {
		return nil, fmt.Errorf("Mul: %dx%d times %dx%d: %w", a.r, a.c, b.r, b.c, ErrDimensionMismatch)
	}
	t := NewTriplet(a.r, b.c)
	acc := make([]float64, a.r)
	mark := make([]int, a.r)
	for i := range mark {
		mark[i] = -1
	}
	var touched []int
	for j := 0; j < b.c; j++ {
		touched = touched[:0]
		for q := b.colPtr[j]; q < b.colPtr[j+1]; q++ {
			k, bv := b.rowIdx[q], b.values[q]
			for p := a.colPtr[k]; p < a.colPtr[k+1]; p++ {
				i := a.rowIdx[p]
				if mark[i] != j {
					mark[i] = j
					acc[i] = 0
					touched = append(touched, i)
				}
				acc[i] += a.values[p] * bv
			}
		}
		for _, i := range touched {
			t.Append(i, j, acc[i])
		}
	}
	if t.Len() == 0 {
		return &CSC{r: a.r, c: b.c, colPtr: make([]int, b.c+1)}, nil
	}
	return t.ToCSC()
}

// MulVecTo computes dst = m*x. dst must not alias x.
func (m *CSC) MulVecTo(dst, x []float64) {
	if len(x) != m.c || len(dst) != m.r {
		panic(ErrDimensionMismatch)
	}
	for i := range dst {
		dst[i] = 0
	}
	for j := 0; j < m.c; j++ {
		xj := x[j]
		if xj == 0 {
			continue
		}
		for p := m.colPtr[j]; p < m.colPtr[j+1]; p++ {
			dst[m.rowIdx[p]] += m.values[p] * xj
		}
	}
}

// MulTransVecTo computes dst = mᵀ*x.
func (m *CSC) MulTransVecTo(dst, x []float64) {
	if len(x) != m.r || len(dst) != m.c {
		panic(ErrDimensionMismatch)
	}
	for j := 0; j < m.c; j++ {
		var s float64
		for p := m.colPtr[j]; p < m.colPtr[j+1]; p++ {
			s += m.values[p] * x[m.rowIdx[p]]
		}
		dst[j] = s
	}
}

// MulDense returns m*b as a dense matrix.
func (m *CSC) MulDense(b mat.Matrix) *mat.Dense {
	br, bc := b.Dims()
	if br != m.c {
		panic(ErrDimensionMismatch)
	}
	out := mat.NewDense(m.r, bc, nil)
	x := make([]float64, br)
	y := make([]float64, m.r)
	for k := 0; k < bc; k++ {
		mat.Col(x, k, b)
		m.MulVecTo(y, x)
		out.SetCol(k, y)
	}
	return out
}

// QuadForm returns xᵀ*m*x.
func (m *CSC) QuadForm(x []float64) float64 {
	if m.r != m.c || len(x) != m.c {
		panic(ErrDimensionMismatch)
	}
	var s float64
	for j := 0; j < m.c; j++ {
		xj := x[j]
		if xj == 0 {
			continue
		}
		for p := m.colPtr[j]; p < m.colPtr[j+1]; p++ {
			s += x[m.rowIdx[p]] * m.values[p] * xj
		}
	}
	return s
}
