package bayesglm

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/n0madic/go-spde-em/sparse"
	"github.com/n0madic/go-spde-em/spde"
)

// taskOffset is the first row of task k in session ns of a vector laid out
// session major, task within session.
func taskOffset(k, ns, nTasks, n int) int {
	return k*n + ns*nTasks*n
}

func priorScale(phi float64) float64 {
	return 1 / (4 * math.Pi * phi)
}

// NewJointPrecision builds the block-diagonal prior precision QK for the
// hyperparameters theta: session ns of task k holds Q(κ²_k)/(4πφ_k).
func NewJointPrecision(prior *spde.Prior, theta []float64, nSess int) (*sparse.CSC, error) {
	nTasks, err := taskCount(theta)
	if err != nil {
		return nil, err
	}
	if nSess < 1 {
		return nil, invalid("sessions", "%d must be positive", nSess)
	}
	blocks := make([]*sparse.CSC, nTasks*nSess)
	for k := 0; k < nTasks; k++ {
		q, err := prior.Precision(theta[k])
		if err != nil {
			return nil, err
		}
		q = q.Scale(priorScale(theta[nTasks+k]))
		for ns := 0; ns < nSess; ns++ {
			blocks[ns*nTasks+k] = q
		}
	}
	return sparse.BlockDiag(blocks...)
}

// RademacherProbes returns a rows×cols matrix of independent ±1 entries for
// Hutchinson trace estimation. The same seed always yields the same matrix.
func RademacherProbes(rows, cols int, seed uint64) *mat.Dense {
	coin := distuv.Bernoulli{P: 0.5, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = 2*coin.Rand() - 1
	}
	return mat.NewDense(rows, cols, data)
}

// taskCount returns K for theta = (κ²₁..κ²_K, φ₁..φ_K, σ²).
func taskCount(theta []float64) (int, error) {
	if len(theta) < 3 || len(theta)%2 == 0 {
		return 0, invalid("theta", "length %d is not 2K+1 with K ≥ 1", len(theta))
	}
	for i, v := range theta {
		if !(v > 0) || math.IsInf(v, 0) {
			return 0, invalid("theta", "entry %d = %g is not finite and positive", i, v)
		}
	}
	return (len(theta) - 1) / 2, nil
}
