package sequence

import (
	"fmt"
	"math"
	"strings"
)

// Profile is the normalized time profile f(t) of a diffusion-encoding
// gradient. Intervals returns the ordered breakpoints t_0 < t_1 < ... < t_n
// of the waveform; for an interval constant profile f is constant on each
// (t_i, t_i+1).
type Profile interface {
	Call(t float64) float64
	IntervalConstant() bool
	Intervals() []float64
	EchoTime() float64
	// IntegralF2 is ∫ F(t)^2 dt with F(t) = ∫_0^t f, so b = γ² g² IntegralF2.
	IntegralF2() float64
	Validate() error
	String() string
}

// PGSE is the pulsed gradient spin echo: f = 1 on [0, δ], f = -1 on
// [Δ, Δ+δ] and zero elsewhere.
type PGSE struct {
	SmallDelta float64 // δ, pulse duration
	Delta      float64 // Δ, time between pulse onsets
}

func (p PGSE) Call(t float64) float64 {
	switch {
	case t >= 0 && t <= p.SmallDelta:
		return 1
	case t >= p.Delta && t <= p.Delta+p.SmallDelta:
		return -1
	}
	return 0
}

func (p PGSE) IntervalConstant() bool { return true }

func (p PGSE) Intervals() []float64 {
	return strictlyIncreasing([]float64{0, p.SmallDelta, p.Delta, p.Delta + p.SmallDelta})
}

func (p PGSE) EchoTime() float64 { return p.Delta + p.SmallDelta }

func (p PGSE) IntegralF2() float64 {
	return p.SmallDelta * p.SmallDelta * (p.Delta - p.SmallDelta/3)
}

func (p PGSE) Validate() error { return validatePulses(p.String(), p.SmallDelta, p.Delta) }

func (p PGSE) String() string {
	return fmt.Sprintf("PGSE(δ=%g, Δ=%g)", p.SmallDelta, p.Delta)
}

// DoublePGSE is two PGSE blocks, the second starting Mixing after the first
// ends.
type DoublePGSE struct {
	SmallDelta float64
	Delta      float64
	Mixing     float64
}

func (p DoublePGSE) second() float64 { return p.Delta + p.SmallDelta + p.Mixing }

func (p DoublePGSE) Call(t float64) float64 {
	first := PGSE{p.SmallDelta, p.Delta}
	if t <= first.EchoTime() {
		return first.Call(t)
	}
	return first.Call(t - p.second())
}

func (p DoublePGSE) IntervalConstant() bool { return true }

func (p DoublePGSE) Intervals() []float64 {
	var (
		first = PGSE{p.SmallDelta, p.Delta}.Intervals()
		t0    = p.second()
		ts    = append([]float64(nil), first...)
	)
	for _, t := range first {
		ts = append(ts, t0+t)
	}
	return strictlyIncreasing(ts)
}

func (p DoublePGSE) EchoTime() float64 { return 2*(p.Delta+p.SmallDelta) + p.Mixing }

func (p DoublePGSE) IntegralF2() float64 { return 2 * PGSE{p.SmallDelta, p.Delta}.IntegralF2() }

func (p DoublePGSE) Validate() error {
	if err := validatePulses(p.String(), p.SmallDelta, p.Delta); err != nil {
		return err
	}
	if p.Mixing < 0 {
		return fmt.Errorf("%s: negative mixing time", p)
	}
	return nil
}

func (p DoublePGSE) String() string {
	return fmt.Sprintf("DoublePGSE(δ=%g, Δ=%g, tm=%g)", p.SmallDelta, p.Delta, p.Mixing)
}

// CosOGSE is an oscillating gradient with NPeriod cosine periods per lobe.
type CosOGSE struct {
	SmallDelta float64
	Delta      float64
	NPeriod    int
}

func (p CosOGSE) Call(t float64) float64 {
	w := 2 * math.Pi * float64(p.NPeriod) / p.SmallDelta
	switch {
	case t >= 0 && t <= p.SmallDelta:
		return math.Cos(w * t)
	case t >= p.Delta && t <= p.Delta+p.SmallDelta:
		return -math.Cos(w * (t - p.Delta))
	}
	return 0
}

func (p CosOGSE) IntervalConstant() bool { return false }

func (p CosOGSE) Intervals() []float64 {
	return strictlyIncreasing([]float64{0, p.SmallDelta, p.Delta, p.Delta + p.SmallDelta})
}

func (p CosOGSE) EchoTime() float64 { return p.Delta + p.SmallDelta }

func (p CosOGSE) IntegralF2() float64 {
	n := float64(p.NPeriod)
	return math.Pow(p.SmallDelta, 3) / (4 * n * n * math.Pi * math.Pi)
}

func (p CosOGSE) Validate() error { return validateOscillating(p.String(), p.SmallDelta, p.Delta, p.NPeriod) }

func (p CosOGSE) String() string {
	return fmt.Sprintf("CosOGSE(δ=%g, Δ=%g, n=%d)", p.SmallDelta, p.Delta, p.NPeriod)
}

// SinOGSE is an oscillating gradient with NPeriod sine periods per lobe.
type SinOGSE struct {
	SmallDelta float64
	Delta      float64
	NPeriod    int
}

func (p SinOGSE) Call(t float64) float64 {
	w := 2 * math.Pi * float64(p.NPeriod) / p.SmallDelta
	switch {
	case t >= 0 && t <= p.SmallDelta:
		return math.Sin(w * t)
	case t >= p.Delta && t <= p.Delta+p.SmallDelta:
		return -math.Sin(w * (t - p.Delta))
	}
	return 0
}

func (p SinOGSE) IntervalConstant() bool { return false }

func (p SinOGSE) Intervals() []float64 {
	return strictlyIncreasing([]float64{0, p.SmallDelta, p.Delta, p.Delta + p.SmallDelta})
}

func (p SinOGSE) EchoTime() float64 { return p.Delta + p.SmallDelta }

func (p SinOGSE) IntegralF2() float64 {
	n := float64(p.NPeriod)
	return 3 * math.Pow(p.SmallDelta, 3) / (4 * n * n * math.Pi * math.Pi)
}

func (p SinOGSE) Validate() error { return validateOscillating(p.String(), p.SmallDelta, p.Delta, p.NPeriod) }

func (p SinOGSE) String() string {
	return fmt.Sprintf("SinOGSE(δ=%g, Δ=%g, n=%d)", p.SmallDelta, p.Delta, p.NPeriod)
}

// NewProfile builds a profile from its configuration name: pgse, doublepgse,
// cosogse or sinogse. nperiod is ignored by the PGSE family, mixing by the
// others.
func NewProfile(name string, smallDelta, delta, mixing float64, nperiod int) (p Profile, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pgse", "":
		p = PGSE{smallDelta, delta}
	case "doublepgse":
		p = DoublePGSE{smallDelta, delta, mixing}
	case "cosogse":
		p = CosOGSE{smallDelta, delta, nperiod}
	case "sinogse":
		p = SinOGSE{smallDelta, delta, nperiod}
	default:
		return nil, fmt.Errorf("unknown sequence %q", name)
	}
	if err = p.Validate(); err != nil {
		return nil, err
	}
	return
}

func validatePulses(name string, smallDelta, delta float64) error {
	if !(smallDelta > 0) {
		return fmt.Errorf("%s: pulse duration must be positive", name)
	}
	if delta < smallDelta {
		return fmt.Errorf("%s: pulses overlap, Δ < δ", name)
	}
	return nil
}

func validateOscillating(name string, smallDelta, delta float64, nperiod int) error {
	if err := validatePulses(name, smallDelta, delta); err != nil {
		return err
	}
	if nperiod < 1 {
		return fmt.Errorf("%s: need at least one period", name)
	}
	return nil
}

// strictlyIncreasing drops repeated breakpoints, e.g. Δ = δ.
func strictlyIncreasing(ts []float64) (out []float64) {
	for _, t := range ts {
		if len(out) == 0 || t > out[len(out)-1] {
			out = append(out, t)
		}
	}
	return
}
