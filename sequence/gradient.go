package sequence

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Gradient is a diffusion-encoding gradient g(t) = Amplitude f(t) Direction.
type Gradient struct {
	Amplitude float64
	Direction r3.Vec // Unit vector
	Profile   Profile
}

// NewGradient normalizes the direction. The amplitude is in units matching
// the gyromagnetic ratio used by the solver.
func NewGradient(amplitude float64, direction r3.Vec, p Profile) (g Gradient, err error) {
	n := r3.Norm(direction)
	if n == 0 || math.IsNaN(n) {
		return g, fmt.Errorf("gradient direction %v has no length", direction)
	}
	g = Gradient{
		Amplitude: amplitude,
		Direction: r3.Scale(1/n, direction),
		Profile:   p,
	}
	return
}

// NewGradientFromBValue picks the amplitude producing b-value b.
func NewGradientFromBValue(b, gamma float64, direction r3.Vec, p Profile) (Gradient, error) {
	return NewGradient(Amplitude(b, gamma, p), direction, p)
}

func (g Gradient) IntervalConstant() bool { return g.Profile.IntervalConstant() }

func (g Gradient) Intervals() []float64 { return g.Profile.Intervals() }

// At evaluates the gradient vector at time t.
func (g Gradient) At(t float64) r3.Vec {
	return r3.Scale(g.Amplitude*g.Profile.Call(t), g.Direction)
}

// BValue is γ² |g|² ∫F².
func (g Gradient) BValue(gamma float64) float64 { return BValue(g.Amplitude, gamma, g.Profile) }

func (g Gradient) String() string {
	return fmt.Sprintf("%s, |g| = %g, direction (%.4g, %.4g, %.4g)",
		g.Profile, g.Amplitude, g.Direction.X, g.Direction.Y, g.Direction.Z)
}

// Amplitude converts a b-value to a gradient amplitude.
func Amplitude(b, gamma float64, p Profile) float64 {
	return math.Sqrt(b/p.IntegralF2()) / math.Abs(gamma)
}

// BValue converts a gradient amplitude to a b-value.
func BValue(amplitude, gamma float64, p Profile) float64 {
	return gamma * gamma * amplitude * amplitude * p.IntegralF2()
}
