package btpde

import (
	"fmt"

	"github.com/notargets/gobloch/fem"
	"github.com/notargets/gobloch/utils"
)

// InitialMagnetization returns the equilibrium state with constant spin
// density rho[c] in compartment c.
func InitialMagnetization(mats *fem.Matrices, rho []float64) (xi []complex128, err error) {
	if len(rho) != mats.NCompartments() {
		return nil, fmt.Errorf("%w: %d initial densities for %d compartments",
			ErrConfiguration, len(rho), mats.NCompartments())
	}
	xi = make([]complex128, mats.Dim())
	for c, r := range rho {
		for i := mats.Offsets[c]; i < mats.Offsets[c+1]; i++ {
			xi[i] = complex(r, 0)
		}
	}
	return
}

// Signal is the integral of the magnetization, 1ᵀ M ξ.
func Signal(M utils.CSR, xi []complex128) (s complex128) {
	M.DoNonZero(func(_, j int, v float64) {
		s += complex(v, 0) * xi[j]
	})
	return
}

// CompartmentSignals integrates the magnetization over each compartment.
func CompartmentSignals(mats *fem.Matrices, xi []complex128) (s []complex128) {
	s = make([]complex128, mats.NCompartments())
	for c, Mc := range mats.MCmpts {
		s[c] = Signal(Mc, xi[mats.Offsets[c]:mats.Offsets[c+1]])
	}
	return
}
