package bayesglm

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-spde-em/sparse"
	"github.com/n0madic/go-spde-em/spde"
)

// diagPrior builds a trivial-mesh prior with diagonal C and G and the
// consistent GᵀC⁻¹G = diag(g²/c).
func diagPrior(t testing.TB, rng *rand.Rand, n int) (*spde.Prior, []float64, []float64) {
	t.Helper()
	c := make([]float64, n)
	g := make([]float64, n)
	gcg := make([]float64, n)
	for i := range c {
		c[i] = 0.5 + rng.Float64()
		g[i] = 0.5 + rng.Float64()
		gcg[i] = g[i] * g[i] / c[i]
	}
	cm, err := sparse.Diag(c)
	require.NoError(t, err)
	gm, err := sparse.Diag(g)
	require.NoError(t, err)
	hm, err := sparse.Diag(gcg)
	require.NoError(t, err)
	prior, err := spde.NewPrior(cm, gm, hm)
	require.NoError(t, err)
	return prior, c, g
}

// chainPrior builds the lumped-mass blocks of a 1-D mesh with n vertices.
func chainPrior(t testing.TB, n int) *spde.Prior {
	t.Helper()
	mass := make([]float64, n)
	cinv := make([]float64, n)
	for i := range mass {
		mass[i] = 1
		if i == 0 || i == n-1 {
			mass[i] = 0.5
		}
		cinv[i] = 1 / mass[i]
	}
	gt := sparse.NewTriplet(n, n)
	for i := 0; i+1 < n; i++ {
		gt.Append(i, i, 1)
		gt.Append(i+1, i+1, 1)
		gt.Append(i, i+1, -1)
		gt.Append(i+1, i, -1)
	}
	c, err := sparse.Diag(mass)
	require.NoError(t, err)
	g, err := gt.ToCSC()
	require.NoError(t, err)
	ci, err := sparse.Diag(cinv)
	require.NoError(t, err)
	cig, err := sparse.Mul(ci, g)
	require.NoError(t, err)
	gcg, err := sparse.Mul(g, cig)
	require.NoError(t, err)
	prior, err := spde.NewPrior(c, g, gcg)
	require.NoError(t, err)
	return prior
}

// replicated returns a design stacking reps identity blocks of size n and
// observations y = X·mu + noise.
func replicated(t testing.TB, rng *rand.Rand, mu []float64, reps int, sigma2 float64) (*sparse.CSC, []float64) {
	t.Helper()
	n := len(mu)
	xt := sparse.NewTriplet(n*reps, n)
	y := make([]float64, n*reps)
	sd := math.Sqrt(sigma2)
	for r := 0; r < reps; r++ {
		for i := 0; i < n; i++ {
			xt.Append(r*n+i, i, 1)
			y[r*n+i] = mu[i] + sd*rng.NormFloat64()
		}
	}
	x, err := xt.ToCSC()
	require.NoError(t, err)
	return x, y
}

// oracleMean solves the posterior mean at theta with dense gonum algebra.
func oracleMean(t testing.TB, prior *spde.Prior, theta []float64, data Data, nSess int) []float64 {
	t.Helper()
	K := (len(theta) - 1) / 2
	qk, err := NewJointPrecision(prior, theta, nSess)
	require.NoError(t, err)
	xpsi, err := sparse.Mul(data.X, data.Psi)
	require.NoError(t, err)
	a, err := sparse.Mul(xpsi.Transpose(), xpsi)
	require.NoError(t, err)

	sigma2 := theta[2*K]
	n, _ := qk.Dims()
	var sum mat.Dense
	sum.Scale(1/sigma2, a.ToDense())
	sum.Add(&sum, qk.ToDense())
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, sum.At(i, j))
		}
	}
	var chol mat.Cholesky
	require.True(t, chol.Factorize(sym))

	rhs := make([]float64, n)
	xpsi.MulTransVecTo(rhs, data.Y)
	for i := range rhs {
		rhs[i] /= sigma2
	}
	var mu mat.VecDense
	require.NoError(t, chol.SolveVecTo(&mu, mat.NewVecDense(n, rhs)))
	return mu.RawVector().Data
}

type diagProblem struct {
	prior  *spde.Prior
	data   Data
	mu     []float64
	sigma2 float64
}

// newDiagProblem draws one task, one session of a trivial-mesh model with
// κ² = 2, φ = 0.35 and σ² = 0.01.
func newDiagProblem(t testing.TB) diagProblem {
	t.Helper()
	const (
		n      = 20
		reps   = 50
		kappa2 = 2.0
		phi    = 0.35
		sigma2 = 0.01
	)
	rng := rand.New(rand.NewPCG(7, 11))
	prior, c, g := diagPrior(t, rng, n)
	mu := make([]float64, n)
	for i := range mu {
		q := kappa2*c[i] + 2*g[i] + g[i]*g[i]/c[i]/kappa2
		mu[i] = rng.NormFloat64() * math.Sqrt(4*math.Pi*phi/q)
	}
	x, y := replicated(t, rng, mu, reps, sigma2)
	psi, err := sparse.Identity(n)
	require.NoError(t, err)
	return diagProblem{
		prior:  prior,
		data:   Data{Y: y, X: x, Psi: psi, Vh: RademacherProbes(n, 10, 1)},
		mu:     mu,
		sigma2: sigma2,
	}
}

// counterValue reads a counter from reg whose labels include labels.
func counterValue(t testing.TB, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
