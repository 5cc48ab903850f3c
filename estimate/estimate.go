// Package estimate recovers the per-cell scaling factor of a row whose values
// have already been taken out of log space.
//
// Under total-count scaling every stored value is count/divisor for an integer
// count. Most genes in a cell are lowly expressed, so the counts 1 and 2 are
// both the smallest and the most frequent values of a row. The estimators use
// that to find 1/divisor and reject rows that do not fit.
package estimate

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/happyhackingspace/scdenorm/internal/optim"
	"github.com/happyhackingspace/scdenorm/transform"
)

// Method selects the estimation strategy.
type Method int

const (
	// Top2 uses the smallest distinct value as the unit count.
	Top2 Method = iota
	// Reg fits a slope through the first ranks of the histogram.
	Reg
)

func (m Method) String() string {
	switch m {
	case Top2:
		return "Top2"
	case Reg:
		return "Reg"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod reads "Top2" or "Reg", case-insensitively.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "top2":
		return Top2, nil
	case "reg":
		return Reg, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

const (
	// DefaultTolerance is the integer-consistency cutoff.
	DefaultTolerance = 0.05

	regMinRanks    = 3
	regMaxRanks    = 9
	regResidualTol = 1e-5
)

// Estimator estimates scaling factors. The zero value uses Top2 with a zero
// tolerance; use New for defaults.
type Estimator struct {
	Method    Method
	Tolerance float64
	// ReducedPrecision rounds values to binary16 before building the
	// histogram, exposing rounding errors a wrong base would hide.
	ReducedPrecision bool
}

// New returns an estimator with DefaultTolerance.
func New(m Method) Estimator {
	return Estimator{Method: m, Tolerance: DefaultTolerance}
}

// Estimate returns the scaling factor of a row of inverted values. Failures
// wrap ErrRowRejected.
func (e Estimator) Estimate(values []float64) (float64, error) {
	if e.ReducedPrecision {
		values = transform.ReducePrecisionAll(values)
	}
	h := NewHistogram(values)
	switch e.Method {
	case Top2:
		return e.top2(h)
	case Reg:
		return e.reg(h)
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnknownMethod, e.Method)
	}
}

// Histogram exposes the histogram Estimate would build for values.
func (e Estimator) Histogram(values []float64) Histogram {
	if e.ReducedPrecision {
		values = transform.ReducePrecisionAll(values)
	}
	return NewHistogram(values)
}

func (e Estimator) top2(h Histogram) (float64, error) {
	if err := checkShape(h); err != nil {
		return 0, err
	}
	xm := h.Values[0]
	if dev := integerDeviation(h.Values, xm); !(dev <= e.Tolerance) {
		return 0, fmt.Errorf("%w: mean deviation %.4g > %g", ErrNotIntegerConsistent, dev, e.Tolerance)
	}
	return 1 / xm, nil
}

func (e Estimator) reg(h Histogram) (float64, error) {
	if err := checkShape(h); err != nil {
		return 0, err
	}
	var s float64
	for i := regMinRanks; i <= regMaxRanks; i++ {
		fit, residual, err := fitSlope(h.Head(i))
		if err != nil {
			continue
		}
		s = fit
		if residual < regResidualTol && s > 0 && integerDeviation(h.Values, s) < e.Tolerance {
			return 1 / s, nil
		}
	}
	if !(s > 0) {
		return 0, fmt.Errorf("%w: no positive slope", ErrNotIntegerConsistent)
	}
	if dev := integerDeviation(h.Values, s); !(dev <= e.Tolerance) {
		return 0, fmt.Errorf("%w: mean deviation %.4g > %g", ErrNotIntegerConsistent, dev, e.Tolerance)
	}
	return 1 / s, nil
}

func checkShape(h Histogram) error {
	if h.Len() < 2 {
		return fmt.Errorf("%w: %d distinct", ErrInsufficientDistinctValues, h.Len())
	}
	if !h.SmallestAreMostFrequent() {
		return fmt.Errorf("%w: values %v counts %v", ErrRankFrequencyMismatch, h.Head(2), h.Counts[:2])
	}
	if h.Values[0] <= 0 {
		return fmt.Errorf("%w: smallest %g", ErrNonPositiveValues, h.Values[0])
	}
	for _, v := range h.Values {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return fmt.Errorf("%w: non-finite value %g", ErrNotIntegerConsistent, v)
		}
	}
	return nil
}

// integerDeviation is the mean absolute distance of values/unit to the
// nearest integers. It is +Inf when a scaled value is not finite, which
// happens when reduced precision overflows.
func integerDeviation(values []float64, unit float64) float64 {
	scaled := make([]float64, len(values))
	floats.ScaleTo(scaled, 1/unit, values)
	for i, v := range scaled {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return math.Inf(1)
		}
		scaled[i] = math.Abs(v - math.RoundToEven(v))
	}
	return floats.Sum(scaled) / float64(len(scaled))
}

// fitSlope fits y_k ≈ k·s for ranks k = 1..len(y) and returns s and the
// residual sum of squares.
func fitSlope(y []float64) (float64, float64, error) {
	ranks := make([]float64, len(y))
	for k := range ranks {
		ranks[k] = float64(k + 1)
	}
	residual := make([]float64, len(y))
	p := optim.Problem{
		Func: func(x []float64) float64 {
			floats.ScaleTo(residual, x[0], ranks)
			floats.Sub(residual, y)
			return floats.Dot(residual, residual)
		},
		Grad: func(grad, x []float64) {
			floats.ScaleTo(residual, x[0], ranks)
			floats.Sub(residual, y)
			grad[0] = 2 * floats.Dot(ranks, residual)
		},
	}
	res, err := optim.Minimize(p, []float64{1}, nil, optim.Settings{Tolerance: 1e-12, MaxIterations: 200})
	if err != nil {
		return 0, 0, err
	}
	return res.X[0], res.F, nil
}
