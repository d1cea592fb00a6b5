package sparse

import "errors"

// Sentinel errors returned by the sparse package. Callers match them with
// errors.Is; they may arrive wrapped with operation context.
var (
	// ErrShape is returned when requested dimensions are not positive.
	ErrShape = errors.New("sparse: invalid shape")

	// ErrDimensionMismatch indicates incompatible operand dimensions.
	ErrDimensionMismatch = errors.New("sparse: dimension mismatch")

	// ErrNotSquare signals that a square matrix was required.
	ErrNotSquare = errors.New("sparse: matrix is not square")

	// ErrPatternViolation is returned when a write targets a slot that is not
	// part of the destination's nonzero pattern.
	ErrPatternViolation = errors.New("sparse: entry outside nonzero pattern")

	// ErrPatternMismatch is returned when a numeric factorization is requested
	// for a matrix whose pattern differs from the analysed one.
	ErrPatternMismatch = errors.New("sparse: pattern differs from symbolic analysis")

	// ErrNotPositiveDefinite is returned when a non-positive pivot is met.
	ErrNotPositiveDefinite = errors.New("sparse: matrix is not positive definite")

	// ErrNotFactorized is returned by solves on a factor that holds no valid
	// numeric factorization.
	ErrNotFactorized = errors.New("sparse: no valid factorization")
)
