package btpde

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FitADC estimates the apparent diffusion coefficient from normalized
// signals, fitting log(S/S0) = -ADC b by least squares through the origin.
func FitADC(bvalues, attenuation []float64) (adc float64, err error) {
	if len(bvalues) != len(attenuation) || len(bvalues) == 0 {
		return 0, fmt.Errorf("%d b-values for %d signals", len(bvalues), len(attenuation))
	}
	y := make([]float64, len(attenuation))
	for i, a := range attenuation {
		if !(a > 0) {
			return 0, fmt.Errorf("signal %g at b = %g cannot be log transformed", a, bvalues[i])
		}
		y[i] = math.Log(a)
	}
	if floats.Max(bvalues) == 0 && floats.Min(bvalues) == 0 {
		return 0, fmt.Errorf("need a non zero b-value to fit")
	}
	_, beta := stat.LinearRegression(bvalues, y, nil, true)
	return -beta, nil
}
