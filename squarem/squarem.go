// Package squarem accelerates the convergence of slowly converging
// fixed-point maps, such as EM updates, with the single-step squared
// extrapolation scheme (SQUAREM, K=1).
//
// Every outer iteration evaluates the map twice, p1 = F(p) and p2 = F(p1),
// and proposes
//
//	p' = p + 2α·r + α²·v,  r = p1 - p,  v = p2 - 2p1 + p
//
// with α clamped to adaptive bounds. Extrapolated proposals are stabilized by
// one more evaluation of F and rejected in favour of p2 when they drift too
// far.
package squarem

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/floats"
)

// FixedPointFunc is one update of the fixed-point iteration. It must not
// modify its argument and must return a vector of the same length.
type FixedPointFunc func(par []float64) ([]float64, error)

// Result is the outcome of one accelerated run.
type Result struct {
	Par         []float64 // final iterate
	Iterations  int       // outer iterations started
	Evaluations int       // fixed-point evaluations
	Converged   bool      // residual fell below Tol within the budget
}

// Step describes one completed outer iteration.
type Step struct {
	Iteration    int
	Residual     float64
	StepLength   float64 // accepted steplength
	StepMin      float64 // bounds the steplength was clamped to
	StepMax      float64
	Extrapolated bool
}

// FixedPointError reports a failed evaluation of the fixed-point map.
type FixedPointError struct {
	Evaluation int
	Cause      error
}

func (e *FixedPointError) Error() string {
	return fmt.Sprintf("squarem: fixed-point evaluation %d failed: %v", e.Evaluation, e.Cause)
}

func (e *FixedPointError) Unwrap() error { return e.Cause }

// Accelerate iterates fixpt from par until two consecutive iterates differ by
// less than Tol or MaxIter evaluations have been spent.
//
// When converged, the returned iterate p satisfies ‖F(p) - p‖ < Tol. An
// exhausted budget is not an error: the last iterate is returned with
// Converged false. A failing evaluation aborts the run with a
// *FixedPointError; if it was the very first evaluation the Result is nil,
// otherwise it carries the current iterate. A failure while stabilizing an
// extrapolated proposal is not fatal: the proposal is dropped for p2 and the
// upper step bound is reduced.
func Accelerate(fixpt FixedPointFunc, par []float64, options ...Option) (*Result, error) {
	cfg := DefaultConfig()
	for _, opt := range options {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(par) == 0 {
		return nil, fmt.Errorf("%w: empty parameter vector", ErrInvalidConfig)
	}

	level := zerolog.DebugLevel
	if cfg.Trace {
		level = zerolog.InfoLevel
	}
	log := cfg.Logger

	n := len(par)
	p := make([]float64, n)
	copy(p, par)
	pnew := make([]float64, n)
	r := make([]float64, n)
	v := make([]float64, n)

	stepMin, stepMax := cfg.StepMin0, cfg.StepMax0
	iter, feval := 1, 0
	converged := false

	evaluate := func(x []float64) ([]float64, error) {
		feval++
		out, err := fixpt(x)
		if err != nil {
			return nil, &FixedPointError{Evaluation: feval, Cause: err}
		}
		if len(out) != n {
			return nil, &FixedPointError{Evaluation: feval, Cause: fmt.Errorf("returned %d parameters, want %d", len(out), n)}
		}
		return out, nil
	}
	abort := func(err error) (*Result, error) {
		log.Error().Err(err).Int("evaluations", feval).Msg("squarem aborted")
		if feval == 1 {
			return nil, err
		}
		return &Result{Par: p, Iterations: iter, Evaluations: feval}, err
	}

	for feval < cfg.MaxIter {
		extrap := true

		p1, err := evaluate(p)
		if err != nil {
			return abort(err)
		}
		sr2 := sqDistance(p1, p)
		if math.Sqrt(sr2) < cfg.Tol {
			converged = true
			break
		}

		p2, err := evaluate(p1)
		if err != nil {
			return abort(err)
		}
		sq2 := math.Sqrt(sqDistance(p2, p1))
		if sq2 < cfg.Tol {
			copy(p, p1)
			converged = true
			break
		}
		res := sq2

		floats.SubTo(r, p1, p)
		for i := range v {
			v[i] = p2[i] - 2*p1[i] + p[i]
		}
		sv2 := floats.Dot(v, v)
		srv := floats.Dot(r, v)

		alpha := cfg.Method.steplength(sr2, srv, sv2)
		if math.IsNaN(alpha) {
			alpha = 1
		}
		alpha = clamp(alpha, stepMin, stepMax)
		step := Step{Iteration: iter, StepMin: stepMin, StepMax: stepMax}

		for i := range pnew {
			pnew[i] = p[i] + 2*alpha*r[i] + alpha*alpha*v[i]
		}

		if math.Abs(alpha-1) > 0.01 {
			ptmp, err := evaluate(pnew)
			if err == nil {
				res = math.Sqrt(sqDistance(ptmp, pnew))
				parnorm := math.Sqrt(floats.Dot(p2, p2) / float64(n))
				kres := cfg.Kr*(1+parnorm) + sq2
				if res <= kres {
					copy(pnew, ptmp)
				} else {
					err = fmt.Errorf("stabilization residual %g exceeds %g", res, kres)
				}
			}
			if err != nil {
				log.WithLevel(level).Err(err).Float64("step_length", alpha).Msg("squarem extrapolation rejected")
				copy(pnew, p2)
				if alpha == stepMax {
					stepMax = math.Max(cfg.StepMax0, stepMax/cfg.MStep)
				}
				alpha = 1
				extrap = false
			}
		}

		if extrap && alpha == stepMax {
			stepMax = cfg.MStep * stepMax
		}
		if stepMin < 0 && alpha == stepMin {
			stepMin = cfg.MStep * stepMin
		}

		p, pnew = pnew, p

		step.Residual = res
		step.StepLength = alpha
		step.Extrapolated = extrap
		log.WithLevel(level).
			Int("iteration", iter).
			Float64("residual", res).
			Bool("extrapolation", extrap).
			Float64("step_length", alpha).
			Msg("squarem iteration")
		if cfg.Observer != nil {
			cfg.Observer(step)
		}
		iter++
	}

	log.WithLevel(level).
		Bool("converged", converged).
		Int("iterations", iter).
		Int("evaluations", feval).
		Msg("squarem finished")

	return &Result{Par: p, Iterations: iter, Evaluations: feval, Converged: converged}, nil
}

func sqDistance(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func sqrtRatio(num, den float64) float64 {
	return math.Sqrt(num / den)
}

func clamp[T constraints.Float](x, lo, hi T) T {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
