// Package sparse implements compressed sparse column matrices and a
// simplicial LDLᵀ factorization whose symbolic analysis can be computed once
// and reused for any number of numeric refactorizations.
package sparse

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CSC is a matrix in compressed sparse column form. Row indices are sorted
// and unique within each column.
type CSC struct {
	r, c   int
	colPtr []int
	rowIdx []int
	values []float64
}

var _ mat.Matrix = (*CSC)(nil)

// NewCSC creates a matrix from raw compressed column arrays. The slices are
// used directly. Row indices must be sorted and unique within each column.
func NewCSC(r, c int, colPtr, rowIdx []int, values []float64) (*CSC, error) {
	if r <= 0 || c <= 0 {
		return nil, ErrShape
	}
	if len(colPtr) != c+1 || colPtr[0] != 0 || colPtr[c] != len(rowIdx) || len(rowIdx) != len(values) {
		return nil, fmt.Errorf("NewCSC: inconsistent storage: %w", ErrShape)
	}
	for j := 0; j < c; j++ {
		if colPtr[j+1] < colPtr[j] {
			return nil, fmt.Errorf("NewCSC: column pointers decrease at %d: %w", j, ErrShape)
		}
		for p := colPtr[j]; p < colPtr[j+1]; p++ {
			i := rowIdx[p]
			if i < 0 || i >= r {
				return nil, fmt.Errorf("NewCSC: row %d out of range: %w", i, ErrShape)
			}
			if p > colPtr[j] && rowIdx[p-1] >= i {
				return nil, fmt.Errorf("NewCSC: rows unsorted in column %d: %w", j, ErrShape)
			}
		}
	}
	return &CSC{r: r, c: c, colPtr: colPtr, rowIdx: rowIdx, values: values}, nil
}

// Dims returns the number of rows and columns.
func (m *CSC) Dims() (r, c int) { return m.r, m.c }

// At returns the element at row i, column j. Structural zeros return 0.
func (m *CSC) At(i, j int) float64 {
	if uint(i) >= uint(m.r) {
		panic(mat.ErrRowAccess)
	}
	if uint(j) >= uint(m.c) {
		panic(mat.ErrColAccess)
	}
	if p, ok := m.find(i, j); ok {
		return m.values[p]
	}
	return 0
}

// T returns an implicit transpose.
func (m *CSC) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// NNZ returns the number of stored entries.
func (m *CSC) NNZ() int { return len(m.rowIdx) }

// Values exposes the stored values in column order. Writes through the
// returned slice change the matrix but never its pattern.
func (m *CSC) Values() []float64 { return m.values }

// Do calls fn for every stored entry in column order.
func (m *CSC) Do(fn func(i, j int, v float64)) {
	for j := 0; j < m.c; j++ {
		for p := m.colPtr[j]; p < m.colPtr[j+1]; p++ {
			fn(m.rowIdx[p], j, m.values[p])
		}
	}
}

// find returns the storage position of (i, j).
func (m *CSC) find(i, j int) (int, bool) {
	lo, hi := m.colPtr[j], m.colPtr[j+1]
	k := lo + sort.SearchInts(m.rowIdx[lo:hi], i)
	if k < hi && m.rowIdx[k] == i {
		return k, true
	}
	return 0, false
}

// Clone returns a deep copy.
func (m *CSC) Clone() *CSC {
	out := &CSC{
		r:      m.r,
		c:      m.c,
		colPtr: make([]int, len(m.colPtr)),
		rowIdx: make([]int, len(m.rowIdx)),
		values: make([]float64, len(m.values)),
	}
	copy(out.colPtr, m.colPtr)
	copy(out.rowIdx, m.rowIdx)
	copy(out.values, m.values)
	return out
}

// Zero sets every stored value to zero, keeping the pattern.
func (m *CSC) Zero() {
	for p := range m.values {
		m.values[p] = 0
	}
}

// Scale returns f*m as a new matrix with the same pattern.
func (m *CSC) Scale(f float64) *CSC {
	out := m.Clone()
	for p := range out.values {
		out.values[p] *= f
	}
	return out
}

// SamePattern reports whether m and o have identical dimensions and nonzero
// index sets.
func (m *CSC) SamePattern(o *CSC) bool {
	if m.r != o.r || m.c != o.c || len(m.rowIdx) != len(o.rowIdx) {
		return false
	}
	for j, p := range m.colPtr {
		if o.colPtr[j] != p {
			return false
		}
	}
	for p, i := range m.rowIdx {
		if o.rowIdx[p] != i {
			return false
		}
	}
	return true
}

// ToDense expands m into a gonum dense matrix.
func (m *CSC) ToDense() *mat.Dense {
	d := mat.NewDense(m.r, m.c, nil)
	m.Do(func(i, j int, v float64) {
		d.Set(i, j, d.At(i, j)+v)
	})
	return d
}

// IsSymmetric reports whether m is square and equal to its transpose
// within tol, including the pattern.
func (m *CSC) IsSymmetric(tol float64) bool {
	if m.r != m.c {
		return false
	}
	sym := true
	m.Do(func(i, j int, v float64) {
		if !sym {
			return
		}
		p, ok := m.find(j, i)
		if !ok {
			sym = false
			return
		}
		d := m.values[p] - v
		if d > tol || d < -tol {
			sym = false
		}
	})
	return sym
}
