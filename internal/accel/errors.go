package accel

import "errors"

var (
	// ErrInvalidConfig is returned by constructors when eta, depth or
	// restart are out of range.
	ErrInvalidConfig = errors.New("accel: invalid configuration")

	// ErrLinearSolve is returned when the DIIS subspace system is singular
	// or too ill-conditioned to solve. It is fatal for the Advance call.
	ErrLinearSolve = errors.New("accel: subspace linear solve failed")

	// ErrShapeMismatch is returned when the problem's output does not have
	// the shape of its input.
	ErrShapeMismatch = errors.New("accel: shape mismatch")
)

// ConfigError describes which configuration field was rejected.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "accel: invalid " + e.Field + ": " + e.Reason
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
