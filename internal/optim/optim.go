// Package optim minimises smooth objectives under simple box constraints.
//
// Bounds are enforced by reparameterisation: a variable with only a lower
// bound lo is written lo + exp(z), one with both bounds is squashed through a
// logistic, and an unbounded variable is used as is. The unconstrained
// problem in z is solved with gonum's L-BFGS.
package optim

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// ErrNoSolution is returned when the optimizer produced no usable point.
var ErrNoSolution = errors.New("optim: no solution")

// Bound is a closed interval; use math.Inf for an open side.
type Bound struct {
	Lo, Hi float64
}

// Unbounded is the bound of a free variable.
var Unbounded = Bound{Lo: math.Inf(-1), Hi: math.Inf(1)}

// AtLeast returns the bound [lo, +Inf).
func AtLeast(lo float64) Bound {
	return Bound{Lo: lo, Hi: math.Inf(1)}
}

// Problem is an objective with its gradient. Grad must fill grad for x.
type Problem struct {
	Func func(x []float64) float64
	Grad func(grad, x []float64)
}

// Settings controls convergence.
type Settings struct {
	// Tolerance is both the gradient norm threshold and the absolute
	// function change below which iterations are considered stalled.
	Tolerance     float64
	MaxIterations int
}

// DefaultSettings returns a tolerance of 1e-6 and 1000 iterations.
func DefaultSettings() Settings {
	return Settings{Tolerance: 1e-6, MaxIterations: 1000}
}

// Result is the minimiser found.
type Result struct {
	X          []float64
	F          float64
	Iterations int
	Status     string
}

// Minimize solves p starting from x0 with one bound per variable. A nil
// bounds slice means every variable is free.
func Minimize(p Problem, x0 []float64, bounds []Bound, s Settings) (*Result, error) {
	if bounds == nil {
		bounds = make([]Bound, len(x0))
		for i := range bounds {
			bounds[i] = Unbounded
		}
	}
	if len(bounds) != len(x0) {
		return nil, fmt.Errorf("optim: %d bounds for %d variables", len(bounds), len(x0))
	}
	for i, b := range bounds {
		if b.Lo >= b.Hi {
			return nil, fmt.Errorf("optim: empty bound %d [%g, %g]", i, b.Lo, b.Hi)
		}
	}

	z0 := make([]float64, len(x0))
	for i := range x0 {
		z0[i] = toFree(bounds[i], x0[i])
	}

	x := make([]float64, len(x0))
	gx := make([]float64, len(x0))
	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			fromFree(bounds, z, x)
			return p.Func(x)
		},
		Grad: func(grad, z []float64) {
			fromFree(bounds, z, x)
			p.Grad(gx, x)
			for i := range z {
				grad[i] = gx[i] * derivative(bounds[i], z[i])
			}
		},
	}

	if s.Tolerance <= 0 {
		s.Tolerance = DefaultSettings().Tolerance
	}
	settings := &optimize.Settings{
		GradientThreshold: s.Tolerance,
		MajorIterations:   s.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   s.Tolerance * s.Tolerance,
			Iterations: 20,
		},
	}

	res, err := optimize.Minimize(problem, z0, settings, &optimize.LBFGS{})
	if res == nil || res.X == nil {
		if err == nil {
			err = ErrNoSolution
		}
		return nil, fmt.Errorf("optim: %w", err)
	}

	out := make([]float64, len(x0))
	fromFree(bounds, res.X, out)
	f := p.Func(out)
	if math.IsNaN(f) || math.IsInf(f, 0) || floats.HasNaN(out) {
		return nil, ErrNoSolution
	}
	// A line search that cannot improve further still leaves a usable point;
	// callers judge it by F.
	return &Result{
		X:          out,
		F:          f,
		Iterations: res.Stats.MajorIterations,
		Status:     res.Status.String(),
	}, nil
}

func toFree(b Bound, x float64) float64 {
	loFinite, hiFinite := !math.IsInf(b.Lo, -1), !math.IsInf(b.Hi, 1)
	switch {
	case loFinite && hiFinite:
		t := (x - b.Lo) / (b.Hi - b.Lo)
		t = math.Min(math.Max(t, 1e-12), 1-1e-12)
		return math.Log(t / (1 - t))
	case loFinite:
		return math.Log(math.Max(x-b.Lo, 1e-300))
	case hiFinite:
		return math.Log(math.Max(b.Hi-x, 1e-300))
	default:
		return x
	}
}

func fromFree(bounds []Bound, z, x []float64) {
	for i, b := range bounds {
		loFinite, hiFinite := !math.IsInf(b.Lo, -1), !math.IsInf(b.Hi, 1)
		switch {
		case loFinite && hiFinite:
			x[i] = b.Lo + (b.Hi-b.Lo)/(1+math.Exp(-z[i]))
		case loFinite:
			x[i] = b.Lo + math.Exp(z[i])
		case hiFinite:
			x[i] = b.Hi - math.Exp(z[i])
		default:
			x[i] = z[i]
		}
	}
}

// derivative returns dx/dz for one variable.
func derivative(b Bound, z float64) float64 {
	loFinite, hiFinite := !math.IsInf(b.Lo, -1), !math.IsInf(b.Hi, 1)
	switch {
	case loFinite && hiFinite:
		e := math.Exp(-z)
		return (b.Hi - b.Lo) * e / ((1 + e) * (1 + e))
	case loFinite:
		return math.Exp(z)
	case hiFinite:
		return -math.Exp(z)
	default:
		return 1
	}
}
