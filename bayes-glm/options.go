package bayesglm

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/n0madic/go-spde-em/sparse"
	"github.com/n0madic/go-spde-em/squarem"
)

// Controls are the user-facing estimation settings. They can be read from
// YAML with LoadControls and applied with WithControls.
type Controls struct {
	Tol      float64 `yaml:"tol"`
	BrentTol float64 `yaml:"brent_tol"` // 0 selects Tol/100
	MaxIter  int     `yaml:"maxiter"`
	MStep    float64 `yaml:"mstep"`
	StepRule int     `yaml:"step_rule"`
	Workers  int     `yaml:"workers"`
	Ordering string  `yaml:"ordering"`
	Verbose  bool    `yaml:"verbose"`
}

// DefaultControls returns the settings used when no option overrides them.
func DefaultControls() Controls {
	return Controls{
		Tol:      1e-3,
		MaxIter:  1500,
		MStep:    4,
		StepRule: int(squarem.StepS3),
		Workers:  1,
		Ordering: sparse.ReverseCuthillMcKee.String(),
	}
}

// Validate checks that the controls describe a runnable estimation.
func (c Controls) Validate() error {
	switch {
	case !(c.Tol > 0):
		return invalid("tol", "%g must be positive", c.Tol)
	case !(c.BrentTol >= 0):
		return invalid("brent_tol", "%g must not be negative", c.BrentTol)
	case c.MaxIter < 1:
		return invalid("maxiter", "%d must be positive", c.MaxIter)
	case !(c.MStep >= 1):
		return invalid("mstep", "%g must be at least 1", c.MStep)
	case c.StepRule < int(squarem.StepS1) || c.StepRule > int(squarem.StepS3):
		return invalid("step_rule", "%d is not one of 1, 2, 3", c.StepRule)
	case c.Workers < 1:
		return invalid("workers", "%d must be positive", c.Workers)
	}
	if _, err := sparse.ParseOrdering(c.Ordering); err != nil {
		return invalid("ordering", "%v", err)
	}
	return nil
}

// LoadControls decodes YAML controls on top of DefaultControls. Unknown keys
// are rejected.
func LoadControls(r io.Reader) (Controls, error) {
	c := DefaultControls()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Controls{}, fmt.Errorf("bayesglm: decode controls: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Controls{}, err
	}
	return c, nil
}

type config struct {
	Controls
	logger  zerolog.Logger
	metrics *Metrics
	initW   []float64
	err     error
}

func newConfig(options []Option) (config, error) {
	cfg := config{Controls: DefaultControls(), logger: zerolog.Nop()}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.err != nil {
		return cfg, cfg.err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c config) brentTol() float64 {
	if c.BrentTol > 0 {
		return c.BrentTol
	}
	return c.Tol / 100
}

func (c config) ordering() sparse.Ordering {
	ord, _ := sparse.ParseOrdering(c.Ordering)
	return ord
}

func (c config) squaremOptions() []squarem.Option {
	return []squarem.Option{
		squarem.WithTol(c.Tol),
		squarem.WithMaxIter(c.MaxIter),
		squarem.WithMStep(c.MStep),
		squarem.WithStepRule(squarem.StepRule(c.StepRule)),
		squarem.WithLogger(c.logger),
		squarem.WithTrace(c.Verbose),
	}
}

// Option configures InitialKP and FindTheta.
type Option func(*config)

// WithControls replaces all controls at once.
func WithControls(c Controls) Option {
	return func(cfg *config) {
		cfg.Controls = c
	}
}

// WithTol sets the convergence tolerance of the accelerated runs.
func WithTol(tol float64) Option {
	return func(cfg *config) {
		cfg.Tol = tol
	}
}

// WithBrentTol sets the tolerance of the κ² searches.
func WithBrentTol(tol float64) Option {
	return func(cfg *config) {
		cfg.BrentTol = tol
	}
}

// WithMaxIter sets the fixed-point evaluation budget of each accelerated run.
func WithMaxIter(maxIter int) Option {
	return func(cfg *config) {
		cfg.MaxIter = maxIter
	}
}

// WithMStep sets the step-bound adaptation factor.
func WithMStep(mstep float64) Option {
	return func(cfg *config) {
		cfg.MStep = mstep
	}
}

// WithStepRule selects the extrapolation steplength formula.
func WithStepRule(rule squarem.StepRule) Option {
	return func(cfg *config) {
		cfg.StepRule = int(rule)
	}
}

// WithWorkers bounds how many tasks are updated concurrently in the M-step.
func WithWorkers(n int) Option {
	return func(cfg *config) {
		cfg.Workers = n
	}
}

// WithOrdering sets the fill-reducing ordering of the posterior factor.
func WithOrdering(ord sparse.Ordering) Option {
	return func(cfg *config) {
		cfg.Ordering = ord.String()
	}
}

// WithVerbose logs every accelerator iteration at info level.
func WithVerbose(verbose bool) Option {
	return func(cfg *config) {
		cfg.Verbose = verbose
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithMetrics records evaluation and factorization counts in m.
func WithMetrics(m *Metrics) Option {
	return func(cfg *config) {
		cfg.metrics = m
	}
}

// WithInitialCoefficients makes FindTheta refine each task's (κ², φ) with
// InitialKP before the EM run. w is laid out like the posterior mean: session
// major, task within session.
func WithInitialCoefficients(w []float64) Option {
	return func(cfg *config) {
		if w == nil {
			cfg.err = invalid("initial coefficients", "nil vector")
			return
		}
		cfg.initW = w
	}
}
