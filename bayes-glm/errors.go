package bayesglm

import (
	"errors"
	"fmt"
)

// ErrInvalidTheta is returned for a hyperparameter vector that is not of the
// form (κ²₁..κ²_K, φ₁..φ_K, σ²) with finite positive entries.
var ErrInvalidTheta = errors.New("bayesglm: invalid hyperparameter vector")

// ValidationError reports an input that does not fit the model dimensions.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bayesglm: invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// SingularError reports a factorization that broke down. Stage names the
// matrix involved: "posterior" for Σ⁻¹ = QK + A/σ², "kappa2" for the prior
// precision inside a κ² search.
type SingularError struct {
	Stage string
	Cause error
}

func (e *SingularError) Error() string {
	return fmt.Sprintf("bayesglm: %s factorization failed: %v", e.Stage, e.Cause)
}

func (e *SingularError) Unwrap() error { return e.Cause }
