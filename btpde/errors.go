package btpde

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration rejects inputs the solver cannot handle, e.g. a
	// gradient profile that is not interval wise constant.
	ErrConfiguration = errors.New("btpde: invalid solver configuration")

	// ErrGeneralSolverUnavailable is reported for continuously varying
	// gradient profiles, which need an ODE based solver.
	ErrGeneralSolverUnavailable = errors.New("btpde: no solver for non interval constant profiles")
)

// LinearAlgebraError wraps a factorization failure with its position in the
// stepping loop. Substep is -1 when the failure happened while factorizing.
type LinearAlgebraError struct {
	Interval int
	Substep  int
	Time     float64
	Err      error
}

func (e *LinearAlgebraError) Error() string {
	if e.Substep < 0 {
		return fmt.Sprintf("btpde: interval %d (t = %g): factorization failed: %v",
			e.Interval, e.Time, e.Err)
	}
	return fmt.Sprintf("btpde: interval %d, substep %d (t = %g): %v",
		e.Interval, e.Substep, e.Time, e.Err)
}

func (e *LinearAlgebraError) Unwrap() error { return e.Err }
