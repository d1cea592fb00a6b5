package brent

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimizeKnownMinima(t *testing.T) {
	tests := []struct {
		name         string
		f            func(float64) float64
		lower, upper float64
		want         float64
	}{
		{"parabola", func(x float64) float64 { return (x - 3) * (x - 3) }, 0, 50, 3},
		{"shifted quartic", func(x float64) float64 { return math.Pow(x-0.7, 4) + 1 }, -2, 2, 0.7},
		{"a*x + b/x", func(x float64) float64 { return 2*x + 8/x }, 0, 50, 2},
		{"cosine", math.Cos, 0, 2 * math.Pi, math.Pi},
	}
	const tol = 1e-6
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Minimize(func(x float64) (float64, error) { return tt.f(x), nil }, tt.lower, tt.upper, tol)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.X, 1e-3)
			assert.InDelta(t, tt.f(res.X), res.F, 1e-12)
			assert.Greater(t, res.Evaluations, 1)
		})
	}
}

func TestMinimizeBoundaryMinimum(t *testing.T) {
	res, err := Minimize(func(x float64) (float64, error) { return x, nil }, 0, 50, 1e-5)
	require.NoError(t, err)
	assert.Greater(t, res.X, 0.0, "never evaluated at the bound")
	assert.Less(t, res.X, 1e-3)
}

func TestMinimizeNeverLeavesInterval(t *testing.T) {
	_, err := Minimize(func(x float64) (float64, error) {
		if x <= 0 || x >= 50 {
			return 0, errors.New("outside")
		}
		return 1/x + x*x, nil
	}, 0, 50, 1e-8)
	require.NoError(t, err)
}

func TestMinimizePropagatesObjectiveError(t *testing.T) {
	boom := errors.New("factorization failed")
	calls := 0
	_, err := Minimize(func(x float64) (float64, error) {
		calls++
		if calls == 3 {
			return 0, boom
		}
		return x * x, nil
	}, -1, 1, 1e-6)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestMinimizeValidation(t *testing.T) {
	f := func(x float64) (float64, error) { return x, nil }
	_, err := Minimize(f, 1, 1, 1e-3)
	assert.ErrorIs(t, err, ErrInvalidInterval)
	_, err = Minimize(f, 2, 1, 1e-3)
	assert.ErrorIs(t, err, ErrInvalidInterval)
	_, err = Minimize(f, math.Inf(-1), 1, 1e-3)
	assert.ErrorIs(t, err, ErrInvalidInterval)
	_, err = Minimize(f, 0, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidTolerance)
}

func TestMinimizeConvexProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	const tol = 1e-6
	properties.Property("converges to c for (x-c)^2 on [0,50]", prop.ForAll(
		func(c float64) bool {
			res, err := Minimize(func(x float64) (float64, error) {
				return (x - c) * (x - c), nil
			}, 0, 50, tol)
			return err == nil && math.Abs(res.X-c) <= 10*tol
		},
		gen.Float64Range(0.5, 49.5),
	))

	properties.TestingRun(t)
}
