package sparse

import "sort"

// Triplet accumulates (row, col, value) entries before compression.
type Triplet struct {
	r, c int
	rows []int
	cols []int
	vals []float64
}

// NewTriplet creates an empty r×c coordinate builder.
func NewTriplet(r, c int) *Triplet {
	return &Triplet{r: r, c: c}
}

// Append records v at (i, j). Entries appended twice are summed by ToCSC.
func (t *Triplet) Append(i, j int, v float64) {
	if uint(i) >= uint(t.r) || uint(j) >= uint(t.c) {
		panic(ErrShape)
	}
	t.rows = append(t.rows, i)
	t.cols = append(t.cols, j)
	t.vals = append(t.vals, v)
}

// Len returns the number of appended entries.
func (t *Triplet) Len() int { return len(t.rows) }

// ToCSC compresses the triplets. Explicit zeros are kept as stored entries so
// that callers can reserve pattern slots.
func (t *Triplet) ToCSC() (*CSC, error) {
	if t.r <= 0 || t.c <= 0 {
		return nil, ErrShape
	}
	count := make([]int, t.c+1)
	for _, j := range t.cols {
		count[j+1]++
	}
	for j := 0; j < t.c; j++ {
		count[j+1] += count[j]
	}
	next := make([]int, t.c)
	copy(next, count[:t.c])
	rows := make([]int, len(t.rows))
	vals := make([]float64, len(t.rows))
	for k, j := range t.cols {
		p := next[j]
		rows[p] = t.rows[k]
		vals[p] = t.vals[k]
		next[j]++
	}

	colPtr := make([]int, t.c+1)
	rowIdx := rows[:0]
	values := vals[:0]
	for j := 0; j < t.c; j++ {
		lo, hi := count[j], count[j+1]
		sort.Sort(entrySorter{rows: rows[lo:hi], vals: vals[lo:hi]})
		start := len(rowIdx)
		for p := lo; p < hi; p++ {
			if len(rowIdx) > start && rowIdx[len(rowIdx)-1] == rows[p] {
				values[len(values)-1] += vals[p]
				continue
			}
			rowIdx = append(rowIdx, rows[p])
			values = append(values, vals[p])
		}
		colPtr[j+1] = len(rowIdx)
	}
	return &CSC{r: t.r, c: t.c, colPtr: colPtr, rowIdx: rowIdx, values: values}, nil
}

type entrySorter struct {
	rows []int
	vals []float64
}

func (s entrySorter) Len() int           { return len(s.rows) }
func (s entrySorter) Less(a, b int) bool { return s.rows[a] < s.rows[b] }
func (s entrySorter) Swap(a, b int) {
	s.rows[a], s.rows[b] = s.rows[b], s.rows[a]
	s.vals[a], s.vals[b] = s.vals[b], s.vals[a]
}
