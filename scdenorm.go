// Package scdenorm recovers raw integer counts from single-cell expression
// matrices that were scaled to a common total per cell and log transformed.
//
// Neither the scaling factors nor the transform are needed:
//
//	cfg := scdenorm.DefaultConfig()
//	res, _ := scdenorm.Denormalize(ctx, m, cfg, nil)
//	fmt.Println(res.Candidate) // base=e constant=1
//	fmt.Println(res.Kept)      // rows that were recovered
package scdenorm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/happyhackingspace/scdenorm/denorm"
	"github.com/happyhackingspace/scdenorm/detect"
	"github.com/happyhackingspace/scdenorm/estimate"
	"github.com/happyhackingspace/scdenorm/report"
	"github.com/happyhackingspace/scdenorm/sparse"
	"github.com/happyhackingspace/scdenorm/transform"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("scdenorm: invalid config")

// Config holds the parameters of a run.
type Config struct {
	Base transform.BaseSpec
	// Constant is the additive constant. Nil sweeps 1, 0.1, 0.01, 0.001
	// and 0.
	Constant         *float64
	Method           estimate.Method
	Tolerance        float64
	AutoTolerance    float64
	Round            bool
	ReducedPrecision bool
	Workers          int
	SampleRows       int
	// MinPassRate is the share of sampled rows the chosen candidate must
	// fit. Zero disables the check.
	MinPassRate float64
	// Transposed marks gene by cell input.
	Transposed bool
}

// DefaultConfig returns the default run parameters.
func DefaultConfig() Config {
	one := 1.0
	return Config{
		Constant:      &one,
		Method:        estimate.Top2,
		Tolerance:     estimate.DefaultTolerance,
		AutoTolerance: detect.DefaultAutoTolerance,
		Round:         true,
		SampleRows:    detect.DefaultSampleRows,
		MinPassRate:   detect.DefaultMinPassRate,
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	switch {
	case c.Method != estimate.Top2 && c.Method != estimate.Reg:
		return fmt.Errorf("%w: method %v", ErrInvalidConfig, c.Method)
	case !(c.Tolerance > 0):
		return fmt.Errorf("%w: tolerance %g", ErrInvalidConfig, c.Tolerance)
	case !(c.AutoTolerance > 0):
		return fmt.Errorf("%w: auto tolerance %g", ErrInvalidConfig, c.AutoTolerance)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, c.Workers)
	case c.SampleRows < 0:
		return fmt.Errorf("%w: sample rows %d", ErrInvalidConfig, c.SampleRows)
	case c.MinPassRate < 0 || c.MinPassRate > 1:
		return fmt.Errorf("%w: min pass rate %g", ErrInvalidConfig, c.MinPassRate)
	case c.Constant != nil && (*c.Constant < 0 || math.IsInf(*c.Constant, 0) || math.IsNaN(*c.Constant)):
		return fmt.Errorf("%w: constant %g", ErrInvalidConfig, *c.Constant)
	}
	return nil
}

// Result is the outcome of a run.
type Result struct {
	denorm.Result
	// Candidate is the transform that was undone. Nil when the input was
	// returned without inversion.
	Candidate *transform.Candidate
	// Integral is set when the input already held integers.
	Integral bool
	// Rounded is set when the input was within tolerance of integers and
	// was only rounded.
	Rounded bool
	// PassedThrough is set when no transform fit the data and the input
	// was returned unchanged.
	PassedThrough bool
	// Groups holds the per-group results of DenormalizeGroups.
	Groups []GroupResult
}

// Denormalize recovers the counts of m. A nil reporter logs through
// slog.Default. When no transform fits, the input is returned with
// PassedThrough set and no error.
func Denormalize(ctx context.Context, m *sparse.CSR, cfg Config, rep report.Reporter) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rep = reporterOrDefault(rep)
	m, err := prepare(m, cfg)
	if err != nil {
		return nil, err
	}

	if m.IsIntegral() {
		rep.Report(report.Event{Kind: report.Info, Message: "Input already holds integer counts", Row: report.NoRow})
		res := unchanged(m, true)
		res.Integral = true
		return res, nil
	}
	if e := m.RoundingError(); e < cfg.Tolerance {
		rep.Report(report.Event{
			Kind:    report.Info,
			Message: "Input is close to integer counts, rounding",
			Row:     report.NoRow,
			Attrs:   []slog.Attr{slog.Float64("rounding_error", e)},
		})
		res := unchanged(m.Rint().EliminateZeros(), true)
		res.Rounded = true
		return res, nil
	}

	det := newDetector(cfg, rep)
	cand, err := selectCandidate(m, cfg, det)
	if err != nil {
		if !errors.Is(err, detect.ErrNoValidBase) {
			return nil, fmt.Errorf("scdenorm: %w", err)
		}
		rep.Report(report.Event{
			Kind:    report.PassThrough,
			Message: "No transform fits the data, returning input unchanged",
			Row:     report.NoRow,
			Err:     err,
		})
		res := unchanged(m, false)
		res.PassedThrough = true
		return res, nil
	}

	d := &denorm.Denormalizer{
		Candidate: cand,
		Estimator: det.Estimator,
		Round:     cfg.Round,
		Workers:   cfg.Workers,
		Reporter:  rep,
	}
	r, err := d.Denormalize(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("scdenorm: %w", err)
	}
	return &Result{Result: *r, Candidate: &cand}, nil
}

// Detect returns the transform Denormalize would undo for m, without
// inverting it. Integer input is not special-cased.
func Detect(m *sparse.CSR, cfg Config, rep report.Reporter) (transform.Candidate, error) {
	if err := cfg.Validate(); err != nil {
		return transform.Candidate{}, err
	}
	m, err := prepare(m, cfg)
	if err != nil {
		return transform.Candidate{}, err
	}
	return selectCandidate(m, cfg, newDetector(cfg, reporterOrDefault(rep)))
}

func reporterOrDefault(rep report.Reporter) report.Reporter {
	if rep == nil {
		return report.NewSlogReporter(slog.Default())
	}
	return rep
}

// prepare orients m as cells by genes and drops stored zeros.
func prepare(m *sparse.CSR, cfg Config) (*sparse.CSR, error) {
	if cfg.Transposed {
		m = m.Transpose()
	}
	if m.IsEmpty() {
		return nil, fmt.Errorf("scdenorm: %w", sparse.ErrEmptyMatrix)
	}
	return m.EliminateZeros(), nil
}

func newDetector(cfg Config, rep report.Reporter) *detect.Detector {
	return &detect.Detector{
		Estimator: estimate.Estimator{
			Method:           cfg.Method,
			Tolerance:        cfg.Tolerance,
			ReducedPrecision: cfg.ReducedPrecision,
		},
		SampleRows:    cfg.SampleRows,
		AutoTolerance: cfg.AutoTolerance,
		MinPassRate:   cfg.MinPassRate,
		Reporter:      rep,
	}
}

// selectCandidate picks the transform for m according to cfg.Base and, when
// MinPassRate is set, checks it against the leading rows.
func selectCandidate(m *sparse.CSR, cfg Config, det *detect.Detector) (transform.Candidate, error) {
	row := detect.SampleRow(m)
	if row < 0 {
		return transform.Candidate{}, fmt.Errorf("%w: no row has two distinct values", detect.ErrNoValidBase)
	}
	sample := m.Row(row)

	var cand transform.Candidate
	var err error
	switch cfg.Base.Mode {
	case transform.BaseFixed:
		cand, err = det.DetectConstant(sample, cfg.Base.Base, cfg.Constant)
	case transform.BaseAuto:
		cand, err = autoDetect(m, sample, det)
	default:
		cand, err = det.Detect(sample, cfg.Constant)
		if errors.Is(err, detect.ErrNoValidBase) {
			cand, err = autoDetect(m, sample, det)
		}
	}
	if err != nil {
		return transform.Candidate{}, err
	}

	if cfg.MinPassRate > 0 {
		rate, err := det.Verify(m, cand)
		if err != nil {
			return transform.Candidate{}, err
		}
		det.Reporter.Report(report.Event{
			Kind:      report.Info,
			Message:   "Transform verified",
			Row:       report.NoRow,
			Candidate: &cand,
			Attrs:     []slog.Attr{slog.Float64("pass_rate", rate)},
		})
	}
	return cand, nil
}

func autoDetect(m *sparse.CSR, sample []float64, det *detect.Detector) (transform.Candidate, error) {
	cand, err := det.AutoDetect(m)
	if err != nil {
		return transform.Candidate{}, err
	}
	if !det.Test(sample, cand) {
		return transform.Candidate{}, fmt.Errorf("%w: fitted %s does not fit the sample row", detect.ErrNoValidBase, cand)
	}
	return cand, nil
}

// unchanged wraps m as a result that keeps every row, with unit factors
// when counted is set.
func unchanged(m *sparse.CSR, counted bool) *Result {
	res := &Result{Result: denorm.Result{Matrix: m, Kept: make([]int, m.Rows)}}
	for i := range res.Kept {
		res.Kept[i] = i
	}
	if counted {
		res.Factors = make([]float64, m.Rows)
		for i := range res.Factors {
			res.Factors[i] = 1
		}
	}
	return res
}
