// Package detect finds the logarithm base and additive constant of a
// transformed expression matrix.
package detect

import (
	"errors"
	"fmt"
	"math"

	"github.com/happyhackingspace/scdenorm/estimate"
	"github.com/happyhackingspace/scdenorm/internal/optim"
	"github.com/happyhackingspace/scdenorm/report"
	"github.com/happyhackingspace/scdenorm/sparse"
	"github.com/happyhackingspace/scdenorm/transform"
)

// ErrNoValidBase means no base and constant make the data consistent with
// integer counts. The matrix cannot be denormalized with confidence.
var ErrNoValidBase = errors.New("detect: no valid base found")

const (
	// DefaultSampleRows is the number of leading rows used by AutoDetect and
	// Verify.
	DefaultSampleRows = 100
	// DefaultAutoTolerance is the convergence tolerance of the joint fit.
	DefaultAutoTolerance = 1e-6
	// DefaultMinPassRate is the fraction of sampled rows Verify requires.
	DefaultMinPassRate = 0.5

	histogramBins = 10
	minAutoBase   = 2
	minAutoConst  = 1e-6
)

// Detector searches for the transform parameters.
type Detector struct {
	Estimator     estimate.Estimator
	SampleRows    int
	AutoTolerance float64
	MinPassRate   float64
	Reporter      report.Reporter
}

// New returns a detector with default sampling and tolerances.
func New(e estimate.Estimator, r report.Reporter) *Detector {
	return &Detector{
		Estimator:     e,
		SampleRows:    DefaultSampleRows,
		AutoTolerance: DefaultAutoTolerance,
		MinPassRate:   DefaultMinPassRate,
		Reporter:      r,
	}
}

func (d *Detector) reporter() report.Reporter {
	if d.Reporter == nil {
		return report.Discard
	}
	return d.Reporter
}

func (d *Detector) sampleRows(m *sparse.CSR) int {
	n := d.SampleRows
	if n <= 0 {
		n = DefaultSampleRows
	}
	return min(n, m.Rows)
}

// Detect tests the candidate bases e, none, 2 and 10 in that order against
// one sample row. With a nil constHint every base is tried with the
// constants 1, 0.1, 0.01, 0.001 and 0; otherwise only with *constHint. The
// first pair under which the inverted sample yields a scaling factor wins.
func (d *Detector) Detect(sample []float64, constHint *float64) (transform.Candidate, error) {
	return d.search(sample, transform.Candidates(), constHint)
}

// DetectConstant is Detect restricted to a known base.
func (d *Detector) DetectConstant(sample []float64, base transform.Base, constHint *float64) (transform.Candidate, error) {
	return d.search(sample, []transform.Base{base}, constHint)
}

func (d *Detector) search(sample []float64, bases []transform.Base, constHint *float64) (transform.Candidate, error) {
	constants := transform.Constants()
	if constHint != nil {
		constants = []float64{*constHint}
	}
	for _, b := range bases {
		for _, c := range constants {
			cand := transform.Candidate{Base: b, Constant: c}
			if d.Test(sample, cand) {
				d.reporter().Report(report.Event{
					Kind:      report.CandidateAccepted,
					Message:   "Base selected",
					Row:       report.NoRow,
					Candidate: &cand,
				})
				return cand, nil
			}
		}
	}
	return transform.Candidate{}, ErrNoValidBase
}

// Test reports whether sample, inverted with cand, yields a scaling factor.
// A failing test emits a CandidateRejected event with the histogram of the
// inverted row.
func (d *Detector) Test(sample []float64, cand transform.Candidate) bool {
	inverted := cand.InverseAll(sample)
	_, err := d.Estimator.Estimate(inverted)
	if err == nil {
		return true
	}
	h := d.Estimator.Histogram(inverted)
	d.reporter().Report(report.Event{
		Kind:      report.CandidateRejected,
		Message:   "Base does not match the data",
		Row:       report.NoRow,
		Candidate: &cand,
		Err:       err,
		Reason:    estimate.Reason(err),
		Histogram: report.Bins(h.Values, h.Counts, histogramBins),
	})
	return false
}

// AutoDetect fits one base and constant jointly over the leading rows. It
// assumes the two smallest counts of most cells are 1 and 2, so the two
// smallest transformed values y1 < y2 satisfy p0^y2 - 2·p0^y1 + p1 = 0 with
// p0 the base and p1 the constant. The sum of squared residuals is
// minimised under p0 >= 2, p1 >= 1e-6, starting from p0 = 20.
func (d *Detector) AutoDetect(m *sparse.CSR) (transform.Candidate, error) {
	var y1, y2 []float64
	for i := range d.sampleRows(m) {
		h := estimate.NewHistogram(m.Row(i))
		if h.Len() < 2 {
			d.reporter().Report(report.Event{
				Kind:    report.SampleSkipped,
				Message: "Row skipped by automatic detection",
				Row:     i,
				Err:     estimate.ErrInsufficientDistinctValues,
				Reason:  estimate.Reason(estimate.ErrInsufficientDistinctValues),
			})
			continue
		}
		y1 = append(y1, h.Values[0])
		y2 = append(y2, h.Values[1])
	}
	if len(y1) == 0 {
		return transform.Candidate{}, fmt.Errorf("%w: no sampled row has two distinct values", ErrNoValidBase)
	}

	// For a fixed base the best constant is the negated mean residual, so the
	// fit runs over the base alone and the constant follows from it.
	constant := func(b float64) float64 {
		var sum float64
		for k := range y1 {
			sum += math.Pow(b, y2[k]) - 2*math.Pow(b, y1[k])
		}
		return math.Max(-sum/float64(len(y1)), minAutoConst)
	}
	p := optim.Problem{
		Func: func(x []float64) float64 {
			c := constant(x[0])
			var sum float64
			for k := range y1 {
				r := math.Pow(x[0], y2[k]) - 2*math.Pow(x[0], y1[k]) + c
				sum += r * r
			}
			return sum
		},
		Grad: func(grad, x []float64) {
			c := constant(x[0])
			grad[0] = 0
			for k := range y1 {
				a, b := math.Pow(x[0], y2[k]), math.Pow(x[0], y1[k])
				r := a - 2*b + c
				grad[0] += 2 * r * (y2[k]*a - 2*y1[k]*b) / x[0]
			}
		},
	}
	tol := d.AutoTolerance
	if tol <= 0 {
		tol = DefaultAutoTolerance
	}
	res, err := optim.Minimize(p, []float64{20}, []optim.Bound{optim.AtLeast(minAutoBase)},
		optim.Settings{Tolerance: tol, MaxIterations: 1000})
	if err != nil {
		return transform.Candidate{}, fmt.Errorf("%w: %w", ErrNoValidBase, err)
	}
	base, err := transform.NewBase(res.X[0])
	if err != nil {
		return transform.Candidate{}, fmt.Errorf("%w: %w", ErrNoValidBase, err)
	}
	cand := transform.Candidate{Base: base, Constant: constant(res.X[0])}
	d.reporter().Report(report.Event{
		Kind:      report.AutoDetected,
		Message:   "Base detected automatically",
		Row:       report.NoRow,
		Candidate: &cand,
		Attrs:     autoAttrs(len(y1), res),
	})
	return cand, nil
}

// Verify inverts the leading rows with cand and returns the fraction that
// yield a scaling factor. A rate below MinPassRate is reported as
// ErrNoValidBase. Rows without stored values are not counted.
func (d *Detector) Verify(m *sparse.CSR, cand transform.Candidate) (float64, error) {
	tested, passed := 0, 0
	for i := range d.sampleRows(m) {
		row := m.Row(i)
		if len(row) == 0 {
			continue
		}
		tested++
		if _, err := d.Estimator.Estimate(cand.InverseAll(row)); err == nil {
			passed++
		}
	}
	if tested == 0 {
		return 0, fmt.Errorf("%w: no sampled row has values", ErrNoValidBase)
	}
	rate := float64(passed) / float64(tested)
	if rate < d.MinPassRate {
		return rate, fmt.Errorf("%w: %s fits %d of %d sampled rows", ErrNoValidBase, cand, passed, tested)
	}
	return rate, nil
}

// SampleRow returns the index of the first row with at least two distinct
// values, or -1 when there is none.
func SampleRow(m *sparse.CSR) int {
	for i := range m.Rows {
		row := m.Row(i)
		for k := 1; k < len(row); k++ {
			if row[k] != row[0] {
				return i
			}
		}
	}
	return -1
}
