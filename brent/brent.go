// Package brent implements Brent's derivative-free minimizer for a scalar
// function on a bounded interval, combining golden-section steps with
// parabolic interpolation.
package brent

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidInterval is returned when lower >= upper or a bound is not finite.
	ErrInvalidInterval = errors.New("brent: invalid interval")

	// ErrInvalidTolerance is returned for a non-positive tolerance.
	ErrInvalidTolerance = errors.New("brent: tolerance must be positive")
)

// golden is the squared inverse of the golden ratio, (3-√5)/2.
var golden = (3 - math.Sqrt(5)) / 2

// Func is the objective. An error aborts the search.
type Func func(x float64) (float64, error)

// Result reports the located minimum.
type Result struct {
	X           float64 // abscissa of the minimum
	F           float64 // objective value at X
	Evaluations int     // number of objective evaluations
}

// Minimize searches [lower, upper] for a minimum of f to within tol.
//
// The objective is never evaluated at the interval ends, nor closer than
// tol1 = √ε·|x| + tol/3 to them or to a previous trial point. If f is not
// unimodal on the interval, the result is a local minimum.
func Minimize(f Func, lower, upper, tol float64) (Result, error) {
	if !(lower < upper) || math.IsInf(lower, 0) || math.IsInf(upper, 0) {
		return Result{}, fmt.Errorf("Minimize: [%g, %g]: %w", lower, upper, ErrInvalidInterval)
	}
	if !(tol > 0) {
		return Result{}, fmt.Errorf("Minimize: tol=%g: %w", tol, ErrInvalidTolerance)
	}

	eps := math.Sqrt(math.Nextafter(1, 2) - 1)
	a, b := lower, upper
	v := a + golden*(b-a)
	w, x := v, v
	var d, e float64

	evals := 0
	eval := func(at float64) (float64, error) {
		evals++
		fv, err := f(at)
		if err != nil {
			return 0, fmt.Errorf("brent: objective at %g: %w", at, err)
		}
		return fv, nil
	}

	fx, err := eval(x)
	if err != nil {
		return Result{}, err
	}
	fv, fw := fx, fx
	tol3 := tol / 3

	for {
		xm := (a + b) / 2
		tol1 := eps*math.Abs(x) + tol3
		t2 := tol1 * 2
		if math.Abs(x-xm) <= t2-(b-a)/2 {
			break
		}

		var p, q, r float64
		if math.Abs(e) > tol1 {
			r = (x - w) * (fx - fv)
			q = (x - v) * (fx - fw)
			p = (x-v)*q - (x-w)*r
			q = (q - r) * 2
			if q > 0 {
				p = -p
			} else {
				q = -q
			}
			r = e
			e = d
		}

		var u float64
		if math.Abs(p) >= math.Abs(q*0.5*r) || p <= q*(a-x) || p >= q*(b-x) {
			// golden-section step
			if x < xm {
				e = b - x
			} else {
				e = a - x
			}
			d = golden * e
		} else {
			// parabolic interpolation step
			d = p / q
			u = x + d
			if u-a < t2 || b-u < t2 {
				d = tol1
				if x >= xm {
					d = -d
				}
			}
		}

		switch {
		case math.Abs(d) >= tol1:
			u = x + d
		case d > 0:
			u = x + tol1
		default:
			u = x - tol1
		}

		fu, err := eval(u)
		if err != nil {
			return Result{}, err
		}

		if fu <= fx {
			if u < x {
				b = x
			} else {
				a = x
			}
			v, w, x = w, x, u
			fv, fw, fx = fw, fx, fu
			continue
		}
		if u < x {
			a = u
		} else {
			b = u
		}
		if fu <= fw || w == x {
			v, fv = w, fw
			w, fw = u, fu
		} else if fu <= fv || v == x || v == w {
			v, fv = u, fu
		}
	}

	return Result{X: x, F: fx, Evaluations: evals}, nil
}
