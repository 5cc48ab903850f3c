package transform

import "math"

const (
	halfMax        = 65504.0
	halfMinNormal  = 1.0 / (1 << 14)
	halfSubnormal  = 1.0 / (1 << 24)
	halfMantissaSz = 11
)

// ReducePrecision rounds x to the nearest IEEE-754 binary16 value, ties to
// even. Magnitudes beyond the binary16 range become infinite.
func ReducePrecision(x float64) float64 {
	if x == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	a := math.Abs(x)
	var r float64
	if a < halfMinNormal {
		r = math.RoundToEven(a/halfSubnormal) * halfSubnormal
	} else {
		frac, exp := math.Frexp(a)
		r = math.Ldexp(math.RoundToEven(math.Ldexp(frac, halfMantissaSz)), exp-halfMantissaSz)
	}
	if r > halfMax {
		r = math.Inf(1)
	}
	return math.Copysign(r, x)
}

// ReducePrecisionAll returns a new slice with ReducePrecision applied.
func ReducePrecisionAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = ReducePrecision(x)
	}
	return out
}
