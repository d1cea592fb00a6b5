package sparse

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// grid2D returns the 5-point Laplacian of an nx×ny grid plus shift*I.
func grid2D(t testing.TB, nx, ny int, shift float64) *CSC {
	t.Helper()
	n := nx * ny
	tr := NewTriplet(n, n)
	idx := func(x, y int) int { return y*nx + x }
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			v := idx(x, y)
			deg := 0.0
			for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				xx, yy := x+d[0], y+d[1]
				if xx < 0 || yy < 0 || xx >= nx || yy >= ny {
					continue
				}
				tr.Append(v, idx(xx, yy), -1)
				deg++
			}
			tr.Append(v, v, deg+shift)
		}
	}
	m, err := tr.ToCSC()
	require.NoError(t, err)
	return m
}

// permuteSym returns P*A*Pᵀ where new index k holds original perm[k].
func permuteSym(t testing.TB, a *CSC, perm []int) *CSC {
	t.Helper()
	n, _ := a.Dims()
	pinv := make([]int, n)
	for k, i := range perm {
		pinv[i] = k
	}
	tr := NewTriplet(n, n)
	a.Do(func(i, j int, v float64) {
		tr.Append(pinv[i], pinv[j], v)
	})
	m, err := tr.ToCSC()
	require.NoError(t, err)
	return m
}

func randomSparse(t testing.TB, rng *rand.Rand, r, c int, density float64) *CSC {
	t.Helper()
	tr := NewTriplet(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if rng.Float64() < density {
				tr.Append(i, j, rng.NormFloat64())
			}
		}
	}
	m, err := tr.ToCSC()
	require.NoError(t, err)
	return m
}

func symDense(a *CSC) *mat.SymDense {
	n, _ := a.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, a.At(i, j))
		}
	}
	return s
}
