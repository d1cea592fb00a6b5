package squarem

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrInvalidConfig is returned when a Config cannot drive an accelerated run.
var ErrInvalidConfig = errors.New("squarem: invalid configuration")

// StepRule selects the steplength formula, in terms of the first difference
// r = F(p) - p and the second difference v = F(F(p)) - 2F(p) + p.
type StepRule int

const (
	// StepS1 uses α = -rᵀv / ‖v‖².
	StepS1 StepRule = iota + 1
	// StepS2 uses α = -‖r‖² / rᵀv.
	StepS2
	// StepS3 uses α = √(‖r‖² / ‖v‖²).
	StepS3
)

func (s StepRule) String() string {
	switch s {
	case StepS1:
		return "S1"
	case StepS2:
		return "S2"
	case StepS3:
		return "S3"
	default:
		return fmt.Sprintf("StepRule(%d)", int(s))
	}
}

// steplength evaluates the rule from ‖r‖², rᵀv and ‖v‖².
func (s StepRule) steplength(sr2, srv, sv2 float64) float64 {
	switch s {
	case StepS1:
		return -srv / sv2
	case StepS2:
		return -sr2 / srv
	default:
		return sqrtRatio(sr2, sv2)
	}
}

// Config controls one accelerated run. It is passed by value and never
// shared between runs.
type Config struct {
	Method   StepRule // steplength formula
	MStep    float64  // multiplicative step-bound adaptation factor
	MaxIter  int      // budget of fixed-point evaluations
	StepMin0 float64  // initial lower steplength bound
	StepMax0 float64  // initial upper steplength bound
	Kr       float64  // stabilization tolerance scale
	Tol      float64  // residual norm below which the run has converged

	Trace    bool // log every iteration at info level instead of debug
	Logger   zerolog.Logger
	Observer func(Step)
}

// DefaultConfig returns the settings used by the estimation routines.
func DefaultConfig() Config {
	return Config{
		Method:   StepS3,
		MStep:    4,
		MaxIter:  1500,
		StepMin0: 1,
		StepMax0: 1,
		Kr:       1,
		Tol:      1e-7,
		Logger:   zerolog.Nop(),
	}
}

func (c Config) validate() error {
	switch {
	case c.Method < StepS1 || c.Method > StepS3:
		return fmt.Errorf("%w: unknown step rule %d", ErrInvalidConfig, int(c.Method))
	case !(c.MStep >= 1):
		return fmt.Errorf("%w: mstep=%g must be at least 1", ErrInvalidConfig, c.MStep)
	case c.MaxIter < 1:
		return fmt.Errorf("%w: maxiter=%d must be positive", ErrInvalidConfig, c.MaxIter)
	case !(c.StepMax0 >= c.StepMin0):
		return fmt.Errorf("%w: stepmax0=%g below stepmin0=%g", ErrInvalidConfig, c.StepMax0, c.StepMin0)
	case !(c.StepMax0 > 0):
		return fmt.Errorf("%w: stepmax0=%g must be positive", ErrInvalidConfig, c.StepMax0)
	case !(c.Kr >= 0):
		return fmt.Errorf("%w: kr=%g must not be negative", ErrInvalidConfig, c.Kr)
	case !(c.Tol > 0):
		return fmt.Errorf("%w: tol=%g must be positive", ErrInvalidConfig, c.Tol)
	}
	return nil
}

// Option adjusts a Config.
type Option func(*Config)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithStepRule sets the steplength formula.
func WithStepRule(rule StepRule) Option {
	return func(c *Config) {
		c.Method = rule
	}
}

// WithMStep sets the step-bound adaptation factor.
func WithMStep(mstep float64) Option {
	return func(c *Config) {
		c.MStep = mstep
	}
}

// WithMaxIter sets the fixed-point evaluation budget.
func WithMaxIter(maxIter int) Option {
	return func(c *Config) {
		c.MaxIter = maxIter
	}
}

// WithStepBounds sets the initial steplength bounds.
func WithStepBounds(stepMin0, stepMax0 float64) Option {
	return func(c *Config) {
		c.StepMin0 = stepMin0
		c.StepMax0 = stepMax0
	}
}

// WithKr sets the stabilization tolerance scale.
func WithKr(kr float64) Option {
	return func(c *Config) {
		c.Kr = kr
	}
}

// WithTol sets the convergence tolerance.
func WithTol(tol float64) Option {
	return func(c *Config) {
		c.Tol = tol
	}
}

// WithLogger sets the logger receiving the iteration trace.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTrace raises the iteration trace to info level.
func WithTrace(trace bool) Option {
	return func(c *Config) {
		c.Trace = trace
	}
}

// WithObserver registers a callback invoked after every outer iteration.
func WithObserver(fn func(Step)) Option {
	return func(c *Config) {
		c.Observer = fn
	}
}
