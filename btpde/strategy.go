package btpde

import (
	"context"
	"fmt"

	"github.com/notargets/gobloch/fem"
)

// Strategy is the closed set of time integration methods.
type Strategy uint8

const (
	IntervalConstant Strategy = iota // θ rule with one factorization per interval
	General                          // ODE integrator for arbitrary waveforms
)

func (s Strategy) String() string {
	switch s {
	case IntervalConstant:
		return "interval-constant"
	case General:
		return "general"
	}
	return fmt.Sprintf("Strategy(%d)", uint8(s))
}

// SelectStrategy picks the solver a gradient profile can be used with.
func SelectStrategy(grad GradientProfile) Strategy {
	if grad.IntervalConstant() {
		return IntervalConstant
	}
	return General
}

// Solve dispatches to the solver selected for grad.
func Solve(ctx context.Context, mats *fem.Matrices, grad GradientProfile, xi0 []complex128,
	opts Options, callbacks ...Callback) (Result, error) {
	switch s := SelectStrategy(grad); s {
	case IntervalConstant:
		return SolveIntervalConstant(ctx, mats, grad, xi0, opts, callbacks...)
	default:
		return Result{}, fmt.Errorf("%w: %s strategy: %w", ErrConfiguration, s, ErrGeneralSolverUnavailable)
	}
}
