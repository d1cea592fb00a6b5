package bayesglm

import (
	"fmt"
	"math"

	"github.com/n0madic/go-spde-em/brent"
	"github.com/n0madic/go-spde-em/spde"
	"github.com/n0madic/go-spde-em/squarem"
)

// kappa2Upper bounds every κ² search; the lower bound is 0.
const kappa2Upper = 50.0

// InitResult is the outcome of InitialKP.
type InitResult struct {
	Kappa2      float64
	Phi         float64
	Converged   bool
	Iterations  int
	Evaluations int
}

// InitialKP finds a starting (κ², φ) for one task from a coefficient estimate
// w, such as a least-squares fit, spanning nSess consecutive sessions of
// length prior.N(). Each fixed-point step minimizes
//
//	Σₛ wₛᵀQ(κ²)wₛ/(4πφ) − nSess·log|Q(κ²)|
//
// over κ² ∈ (0, 50] at fixed φ and then sets φ to the averaged quadratic
// form Σₛ wₛᵀQ(κ²)wₛ/(4π·n·nSess).
func InitialKP(theta0 [2]float64, prior *spde.Prior, w []float64, nSess int, options ...Option) (*InitResult, error) {
	cfg, err := newConfig(options)
	if err != nil {
		return nil, err
	}
	if nSess < 1 {
		return nil, invalid("sessions", "%d must be positive", nSess)
	}
	if len(w) != prior.N()*nSess {
		return nil, invalid("w", "length %d, want %d", len(w), prior.N()*nSess)
	}
	for i, v := range theta0 {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, invalid("theta", "entry %d = %g is not finite and positive", i, v)
		}
	}
	return initialKP(theta0, prior, w, nSess, cfg)
}

func initialKP(theta0 [2]float64, prior *spde.Prior, w []float64, nSess int, cfg config) (*InitResult, error) {
	denom := 4 * math.Pi * float64(prior.N()*nSess)
	brentTol := cfg.brentTol()

	fixpt := func(theta []float64) ([]float64, error) {
		cfg.metrics.evaluated(mapInit)
		kappa2, phi := theta[0], theta[1]
		if !(kappa2 > 0) || !(phi > 0) {
			return nil, fmt.Errorf("%w: kappa2=%g phi=%g", ErrInvalidTheta, kappa2, phi)
		}
		obj := func(k float64) (float64, error) {
			cfg.metrics.objectiveEvaluated()
			wQw, err := prior.QuadForm(k, w, nSess)
			if err != nil {
				return 0, err
			}
			logDet, err := prior.LogDetQt(k, nSess)
			if err != nil {
				return 0, &SingularError{Stage: "kappa2", Cause: err}
			}
			return wQw*priorScale(phi) - logDet, nil
		}
		best, err := brent.Minimize(obj, 0, kappa2Upper, brentTol)
		if err != nil {
			return nil, err
		}
		wQw, err := prior.QuadForm(best.X, w, nSess)
		if err != nil {
			return nil, err
		}
		return []float64{best.X, wQw / denom}, nil
	}

	res, err := squarem.Accelerate(fixpt, theta0[:], cfg.squaremOptions()...)
	cfg.metrics.finished(mapInit, res != nil && res.Converged, err)
	if err != nil {
		return nil, fmt.Errorf("bayesglm: initialization: %w", err)
	}
	cfg.logger.Info().
		Float64("kappa2", res.Par[0]).
		Float64("phi", res.Par[1]).
		Bool("converged", res.Converged).
		Int("evaluations", res.Evaluations).
		Msg("initial kappa2 and phi")
	return &InitResult{
		Kappa2:      res.Par[0],
		Phi:         res.Par[1],
		Converged:   res.Converged,
		Iterations:  res.Iterations,
		Evaluations: res.Evaluations,
	}, nil
}
