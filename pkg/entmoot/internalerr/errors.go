package internalerr

import "errors"

// Sentinel errors for the engine's failure kinds. Callers wrap them with
// fmt.Errorf("%w: ...") and test with errors.Is.
var (
	// ErrGrounding: a fact to assert or retract contains a non-constant field.
	ErrGrounding = errors.New("facts must be grounded")
	// ErrType: an operator or function received an operand of the wrong kind.
	ErrType = errors.New("type error")
	// ErrUnboundVariable: evaluation referenced a variable missing from the binding.
	ErrUnboundVariable = errors.New("unbound variable")
	// ErrUsage: a statement or clause kind is not supported where it was used.
	ErrUsage = errors.New("usage error")
	// ErrUnverifiedClaim: a claim was false in strict mode.
	ErrUnverifiedClaim = errors.New("unable to verify")
	// ErrIterationLimit: saturation did not reach a fixpoint within the pass cap.
	ErrIterationLimit = errors.New("iteration limit reached")

	ErrNotFound      = errors.New("not found")
	ErrInvalidConfig = errors.New("invalid configuration")
)
