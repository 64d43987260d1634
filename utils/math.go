package utils

import (
	"math"
	"math/cmplx"
)

func ConstArray(N int, val float64) (v []float64) {
	v = make([]float64, N)
	for i := range v {
		v[i] = val
	}
	return
}

func ConstArrayC(N int, val complex128) (v []complex128) {
	v = make([]complex128, N)
	for i := range v {
		v[i] = val
	}
	return
}

// NormC is the Euclidean norm of a complex vector.
func NormC(x []complex128) float64 {
	var scale, ssq float64 = 0, 1
	for _, v := range x {
		for _, a := range [2]float64{real(v), imag(v)} {
			if a == 0 {
				continue
			}
			a = math.Abs(a)
			if scale < a {
				ssq = 1 + ssq*(scale/a)*(scale/a)
				scale = a
			} else {
				ssq += (a / scale) * (a / scale)
			}
		}
	}
	return scale * math.Sqrt(ssq)
}

// MaxAbsDiffC returns max_i |x_i - y_i|.
func MaxAbsDiffC(x, y []complex128) (d float64) {
	if len(x) != len(y) {
		panic("length mismatch in MaxAbsDiffC")
	}
	for i := range x {
		if a := cmplx.Abs(x[i] - y[i]); a > d {
			d = a
		}
	}
	return
}
