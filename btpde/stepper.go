package btpde

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/gobloch/fem"
	"github.com/notargets/gobloch/utils"
)

var ErrNonFinite = errors.New("magnetization is not finite")

// GradientProfile is the gradient contract consumed by the solvers.
type GradientProfile interface {
	IntervalConstant() bool
	Intervals() []float64
	At(t float64) r3.Vec
}

type Options struct {
	Theta         float64 // 0.5 is Crank-Nicolson, 1 is implicit Euler
	TimeStep      float64 // Target step, adjusted per interval to divide it evenly
	Factorization utils.FactorizationKind
	Verbose       bool
}

func DefaultOptions() Options {
	return Options{
		Theta:         0.5,
		TimeStep:      1,
		Factorization: utils.Banded,
	}
}

func (o Options) Validate() error {
	if !(o.Theta >= 0 && o.Theta <= 1) {
		return fmt.Errorf("%w: theta = %g outside [0,1]", ErrConfiguration, o.Theta)
	}
	if !(o.TimeStep > 0) || math.IsInf(o.TimeStep, 1) {
		return fmt.Errorf("%w: time step = %g", ErrConfiguration, o.TimeStep)
	}
	return nil
}

type Status uint8

const (
	Completed Status = iota
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Result is the outcome of a solve. On cancellation Xi holds the state of
// the last completed substep and Cause the context error.
type Result struct {
	Xi             []complex128
	Status         Status
	Cause          error
	Time           float64
	Steps          int
	Factorizations int
}

// SolveIntervalConstant integrates
//
//	M dξ/dt = J(t) ξ,  J = -(S + Q + R + iγ g(t)·Mx)
//
// for a gradient that is constant on each interval of grad.Intervals(),
// with the θ rule
//
//	(M - Δt θ J) ξ_k+1 = (M + Δt (1-θ) J) ξ_k.
//
// Each interval is split into round(length/TimeStep) equal substeps, at least
// one, so steps land on every breakpoint. J is evaluated at the interval
// midpoint and the implicit operator is factorized once per interval.
//
// Callbacks see Initialize once, Update after every substep and Finalize
// once Initialize has run, whatever the outcome. The state slice passed to
// them is owned by the solver and must not be modified or retained.
//
// mats is only read, so concurrent solves may share it.
func SolveIntervalConstant(ctx context.Context, mats *fem.Matrices, grad GradientProfile,
	xi0 []complex128, opts Options, callbacks ...Callback) (res Result, err error) {
	if !grad.IntervalConstant() {
		return res, fmt.Errorf("%w: gradient profile is not interval wise constant", ErrConfiguration)
	}
	if err = opts.Validate(); err != nil {
		return
	}
	var (
		ts = grad.Intervals()
		n  = mats.Dim()
	)
	if len(ts) < 2 {
		return res, fmt.Errorf("%w: need at least one interval, got breakpoints %v", ErrConfiguration, ts)
	}
	for i := 1; i < len(ts); i++ {
		if !(ts[i] > ts[i-1]) {
			return res, fmt.Errorf("%w: breakpoints %v are not increasing", ErrConfiguration, ts)
		}
	}
	if len(xi0) != n {
		return res, fmt.Errorf("%w: initial state has length %d, system has %d DOFs",
			ErrConfiguration, len(xi0), n)
	}

	var (
		xi = make([]complex128, n)
		Ey = make([]complex128, n)
	)
	copy(xi, xi0)
	res = Result{Xi: xi, Status: Completed, Time: ts[0]}
	for _, cb := range callbacks {
		cb.Initialize(xi, ts[0])
	}
	defer func() {
		for _, cb := range callbacks {
			cb.Finalize()
		}
	}()
	cancel := func() bool {
		if cause := ctx.Err(); cause != nil {
			res.Status, res.Cause = Cancelled, cause
			return true
		}
		return false
	}

	for i := 0; i < len(ts)-1; i++ {
		if cancel() {
			return
		}
		var (
			t0, t1 = ts[i], ts[i+1]
			nt     = int(math.Round((t1 - t0) / opts.TimeStep))
		)
		if nt < 1 {
			nt = 1
		}
		var (
			dt    = (t1 - t0) / float64(nt)
			g     = grad.At(0.5 * (t0 + t1))
			start = time.Now()
			J     = Jacobian(mats, g)
			F     = J.Shift(mats.M, complex(-dt*opts.Theta, 0))
			E     = J.Shift(mats.M, complex(dt*(1-opts.Theta), 0))
			lu    utils.Factorization
		)
		if lu, err = utils.Factorize(opts.Factorization, F); err != nil {
			return res, &LinearAlgebraError{Interval: i, Substep: -1, Time: t0, Err: err}
		}
		res.Factorizations++
		if opts.Verbose {
			log.Printf("interval %d [%g, %g]: %d steps of %g, g = (%.4g, %.4g, %.4g), %s factorization in %v",
				i, t0, t1, nt, dt, g.X, g.Y, g.Z, opts.Factorization, time.Since(start))
		}
		for k := 0; k < nt; k++ {
			if cancel() {
				return
			}
			E.MulVecTo(Ey, xi)
			lu.SolveTo(xi, Ey)
			t := t0 + float64(k+1)*dt
			if k == nt-1 {
				t = t1
			}
			res.Time = t
			res.Steps++
			if !isFinite(xi) {
				return res, &LinearAlgebraError{Interval: i, Substep: k, Time: t, Err: ErrNonFinite}
			}
			for _, cb := range callbacks {
				cb.Update(xi, t)
			}
		}
	}
	return
}

// Jacobian returns J = -(S + Q + R + iγ g·Mx).
func Jacobian(mats *fem.Matrices, g r3.Vec) utils.ZCSR {
	ig := complex(0, -mats.Gamma)
	return utils.Combine(mats.Dim(),
		utils.Term{Coef: -1, A: mats.S},
		utils.Term{Coef: -1, A: mats.Q},
		utils.Term{Coef: -1, A: mats.R},
		utils.Term{Coef: ig * complex(g.X, 0), A: mats.Mx[0]},
		utils.Term{Coef: ig * complex(g.Y, 0), A: mats.Mx[1]},
		utils.Term{Coef: ig * complex(g.Z, 0), A: mats.Mx[2]},
	)
}

func isFinite(x []complex128) bool {
	for _, v := range x {
		if cmplx.IsNaN(v) || cmplx.IsInf(v) {
			return false
		}
	}
	return true
}
