package fem

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gobloch/mesh"
)

// GammaProton is the gyromagnetic ratio of water protons in rad/(µs mT).
const GammaProton = 0.2675222005

var ErrCoefficients = errors.New("invalid coefficients")

// Coefficients are the physical inputs of the Bloch-Torrey operator.
type Coefficients struct {
	Diffusivity  [][3][3]float64 // Per compartment diffusion tensor
	Relaxation   []float64       // Per compartment T2, +Inf disables relaxation
	Permeability []float64       // Per boundary
	Gamma        float64
}

// IsotropicCoefficients builds coefficients with scalar diffusivities.
func IsotropicCoefficients(diffusivity, relaxation, permeability []float64, gamma float64) (c Coefficients) {
	c = Coefficients{
		Diffusivity:  make([][3][3]float64, len(diffusivity)),
		Relaxation:   relaxation,
		Permeability: permeability,
		Gamma:        gamma,
	}
	for i, d := range diffusivity {
		c.Diffusivity[i] = [3][3]float64{{d, 0, 0}, {0, d, 0}, {0, 0, d}}
	}
	return
}

// Validate checks the coefficient bundle against a mesh.
func (c Coefficients) Validate(m *mesh.FEMesh) error {
	var (
		nc = m.NCompartments()
		nb = m.NBoundaries()
	)
	if len(c.Diffusivity) != nc {
		return fmt.Errorf("%w: %d diffusivities for %d compartments", ErrCoefficients, len(c.Diffusivity), nc)
	}
	if len(c.Relaxation) != nc {
		return fmt.Errorf("%w: %d relaxation times for %d compartments", ErrCoefficients, len(c.Relaxation), nc)
	}
	if len(c.Permeability) != nb {
		return fmt.Errorf("%w: %d permeabilities for %d boundaries", ErrCoefficients, len(c.Permeability), nb)
	}
	for i, D := range c.Diffusivity {
		if err := checkTensor(D); err != nil {
			return fmt.Errorf("%w: compartment %d diffusivity %v", ErrCoefficients, i, err)
		}
	}
	for i, T2 := range c.Relaxation {
		if !(T2 > 0) {
			return fmt.Errorf("%w: compartment %d has T2 = %g", ErrCoefficients, i, T2)
		}
	}
	for b, k := range c.Permeability {
		if k < 0 || math.IsNaN(k) || math.IsInf(k, 0) {
			return fmt.Errorf("%w: boundary %d has permeability %g", ErrCoefficients, b, k)
		}
	}
	if math.IsNaN(c.Gamma) || math.IsInf(c.Gamma, 0) {
		return fmt.Errorf("%w: gamma = %g", ErrCoefficients, c.Gamma)
	}
	return nil
}

// checkTensor requires D to be symmetric positive semidefinite, with
// eigenvalues no lower than -tol·max|λ|.
func checkTensor(D [3][3]float64) error {
	const tol = 1.e-12
	for r := 0; r < 3; r++ {
		for s := 0; s < 3; s++ {
			if math.IsNaN(D[r][s]) || math.IsInf(D[r][s], 0) {
				return fmt.Errorf("is not finite")
			}
		}
		for s := 0; s < r; s++ {
			if math.Abs(D[r][s]-D[s][r]) > tol*(math.Abs(D[r][s])+math.Abs(D[s][r])) {
				return fmt.Errorf("is not symmetric")
			}
		}
	}
	sym := mat.NewSymDense(3, []float64{
		D[0][0], D[0][1], D[0][2],
		D[1][0], D[1][1], D[1][2],
		D[2][0], D[2][1], D[2][2],
	})
	var es mat.EigenSym
	if ok := es.Factorize(sym, false); !ok {
		return fmt.Errorf("eigenvalues did not converge")
	}
	lambda := es.Values(nil)
	scale := math.Max(math.Abs(floats.Min(lambda)), math.Abs(floats.Max(lambda)))
	if lmin := floats.Min(lambda); lmin < -tol*scale {
		return fmt.Errorf("is not positive semidefinite, eigenvalue %g", lmin)
	}
	return nil
}
