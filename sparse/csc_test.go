package sparse

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const tol = 1e-10

func TestTripletToCSC(t *testing.T) {
	tr := NewTriplet(3, 3)
	tr.Append(2, 0, 1)
	tr.Append(0, 0, 2)
	tr.Append(2, 0, 3)
	tr.Append(1, 2, -1)
	tr.Append(0, 1, 0)

	m, err := tr.ToCSC()
	require.NoError(t, err)

	assert.Equal(t, 4, m.NNZ(), "duplicates summed, explicit zero kept")
	assert.Equal(t, 2.0, m.At(0, 0))
	assert.Equal(t, 4.0, m.At(2, 0))
	assert.Equal(t, -1.0, m.At(1, 2))
	assert.Equal(t, 0.0, m.At(0, 1))
	assert.Equal(t, 0.0, m.At(1, 1))
	assert.Equal(t, []int{0, 2}, m.rowIdx[m.colPtr[0]:m.colPtr[1]])
}

func TestNewCSCValidation(t *testing.T) {
	tests := []struct {
		name    string
		r, c    int
		colPtr  []int
		rowIdx  []int
		values  []float64
		wantErr bool
	}{
		{"valid", 2, 2, []int{0, 1, 3}, []int{0, 0, 1}, []float64{1, 2, 3}, false},
		{"bad shape", 0, 2, []int{0, 0, 0}, nil, nil, true},
		{"short colPtr", 2, 2, []int{0, 1}, []int{0}, []float64{1}, true},
		{"row out of range", 2, 2, []int{0, 1, 2}, []int{0, 2}, []float64{1, 2}, true},
		{"unsorted rows", 2, 1, []int{0, 2}, []int{1, 0}, []float64{1, 2}, true},
		{"duplicate rows", 2, 1, []int{0, 2}, []int{1, 1}, []float64{1, 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCSC(tt.r, tt.c, tt.colPtr, tt.rowIdx, tt.values)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrShape))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAtPanicsOutOfRange(t *testing.T) {
	m, err := Identity(2)
	require.NoError(t, err)
	assert.Panics(t, func() { m.At(2, 0) })
	assert.Panics(t, func() { m.At(0, -1) })
}

func TestAddUnionPattern(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := randomSparse(t, rng, 6, 5, 0.3)
	b := randomSparse(t, rng, 6, 5, 0.3)

	sum, err := Add(2, a, -0.5, b)
	require.NoError(t, err)

	var want mat.Dense
	var bs mat.Dense
	want.Scale(2, a.ToDense())
	bs.Scale(-0.5, b.ToDense())
	want.Add(&want, &bs)
	assert.True(t, mat.EqualApprox(&want, sum.ToDense(), tol))

	a.Do(func(i, j int, _ float64) {
		_, ok := sum.find(i, j)
		assert.True(t, ok, "slot (%d,%d) of a missing from sum", i, j)
	})
	b.Do(func(i, j int, _ float64) {
		_, ok := sum.find(i, j)
		assert.True(t, ok, "slot (%d,%d) of b missing from sum", i, j)
	})

	_, err = Add(1, a, 1, randomSparse(t, rng, 5, 5, 0.3))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAddScaled(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	a := randomSparse(t, rng, 5, 5, 0.4)
	b := randomSparse(t, rng, 5, 5, 0.4)
	sum, err := Add(1, a, 1, b)
	require.NoError(t, err)

	sum.Zero()
	require.NoError(t, sum.AddScaled(1, a))
	require.NoError(t, sum.AddScaled(3, b))

	var want, bs mat.Dense
	bs.Scale(3, b.ToDense())
	want.Add(a.ToDense(), &bs)
	assert.True(t, mat.EqualApprox(&want, sum.ToDense(), tol))

	id, err := Identity(5)
	require.NoError(t, err)
	tr := NewTriplet(5, 5)
	tr.Append(0, 4, 1)
	off, err := tr.ToCSC()
	require.NoError(t, err)
	assert.ErrorIs(t, id.AddScaled(1, off), ErrPatternViolation)
}

func TestSetBlockKeepsPattern(t *testing.T) {
	block := grid2D(t, 2, 2, 1)
	big, err := BlockDiag(block, block, block)
	require.NoError(t, err)
	before := big.Clone()

	require.NoError(t, big.SetBlockScaled(4, 4, 10, block))
	assert.True(t, big.SamePattern(before))
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			assert.InDelta(t, 10*block.At(i, j), big.At(4+i, 4+j), tol)
			assert.InDelta(t, block.At(i, j), big.At(i, j), tol)
			assert.InDelta(t, block.At(i, j), big.At(8+i, 8+j), tol)
		}
	}

	dense := grid2D(t, 3, 1, 0)
	err = big.SetBlock(0, 3, dense)
	assert.ErrorIs(t, err, ErrPatternViolation)

	err = big.SetBlock(10, 10, block)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMulMatchesDense(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := randomSparse(t, rng, 7, 4, 0.35)
	b := randomSparse(t, rng, 4, 6, 0.35)

	got, err := Mul(a, b)
	require.NoError(t, err)

	var want mat.Dense
	want.Mul(a.ToDense(), b.ToDense())
	assert.True(t, mat.EqualApprox(&want, got.ToDense(), tol))

	_, err = Mul(b, b)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestTranspose(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	a := randomSparse(t, rng, 5, 3, 0.5)
	at := a.Transpose()
	r, c := at.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 5, c)
	assert.True(t, mat.EqualApprox(a.T(), at.ToDense(), tol))
}

func TestMulVecAndQuadForm(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := randomSparse(t, rng, 6, 6, 0.4)
	x := make([]float64, 6)
	for i := range x {
		x[i] = rng.NormFloat64()
	}

	got := make([]float64, 6)
	a.MulVecTo(got, x)
	var want mat.VecDense
	want.MulVec(a.ToDense(), mat.NewVecDense(6, x))
	assert.True(t, mat.EqualApprox(&want, mat.NewVecDense(6, got), tol))

	a.MulTransVecTo(got, x)
	want.MulVec(a.ToDense().T(), mat.NewVecDense(6, x))
	assert.True(t, mat.EqualApprox(&want, mat.NewVecDense(6, got), tol))

	xv := mat.NewVecDense(6, x)
	assert.InDelta(t, mat.Inner(xv, a.ToDense(), xv), a.QuadForm(x), tol)

	b := mat.NewDense(6, 2, nil)
	for i := 0; i < 6; i++ {
		b.Set(i, 0, x[i])
		b.Set(i, 1, float64(i))
	}
	var wantD mat.Dense
	wantD.Mul(a.ToDense(), b)
	assert.True(t, mat.EqualApprox(&wantD, a.MulDense(b), tol))
}

func TestBlockDiagAndSymmetry(t *testing.T) {
	a := grid2D(t, 2, 3, 0.5)
	d, err := Diag([]float64{1, 2})
	require.NoError(t, err)
	bd, err := BlockDiag(a, d)
	require.NoError(t, err)

	r, c := bd.Dims()
	assert.Equal(t, 8, r)
	assert.Equal(t, 8, c)
	assert.Equal(t, a.NNZ()+2, bd.NNZ())
	assert.Equal(t, 2.0, bd.At(7, 7))
	assert.Equal(t, 0.0, bd.At(0, 7))
	assert.True(t, bd.IsSymmetric(0))

	rng := rand.New(rand.NewSource(6))
	assert.False(t, randomSparse(t, rng, 4, 4, 0.5).IsSymmetric(0))
}
