package btpde

import (
	"log"
	"math/cmplx"

	"github.com/notargets/gobloch/utils"
)

// Callback observes a solve. Hooks run synchronously on the solver's
// goroutine.
type Callback interface {
	Initialize(xi []complex128, t float64)
	Update(xi []complex128, t float64)
	Finalize()
}

// Printer logs the normalized signal every Every updates.
type Printer struct {
	Label string
	M     utils.CSR
	Every int

	s0    float64
	count int
}

func NewPrinter(label string, M utils.CSR, every int) *Printer {
	if every < 1 {
		every = 1
	}
	return &Printer{Label: label, M: M, Every: every}
}

func (p *Printer) Initialize(xi []complex128, t float64) {
	p.count = 0
	p.s0 = cmplx.Abs(Signal(p.M, xi))
	log.Printf("%s: t = %-10.4g |S| = %.6g", p.Label, t, p.s0)
}

func (p *Printer) Update(xi []complex128, t float64) {
	p.count++
	if p.count%p.Every != 0 {
		return
	}
	s := Signal(p.M, xi)
	attenuation := cmplx.Abs(s)
	if p.s0 != 0 {
		attenuation /= p.s0
	}
	log.Printf("%s: t = %-10.4g |S| = %.6g, S/S0 = %.6g, phase = %.4g",
		p.Label, t, cmplx.Abs(s), attenuation, cmplx.Phase(s))
}

func (p *Printer) Finalize() {
	log.Printf("%s: done after %d steps", p.Label, p.count)
}
