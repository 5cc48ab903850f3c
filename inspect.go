package scdenorm

import (
	"fmt"

	"github.com/happyhackingspace/scdenorm/detect"
	"github.com/happyhackingspace/scdenorm/estimate"
	"github.com/happyhackingspace/scdenorm/report"
	"github.com/happyhackingspace/scdenorm/sparse"
	"github.com/happyhackingspace/scdenorm/transform"
)

const inspectBins = 50

// Inspection is the outcome of one candidate transform on one row.
type Inspection struct {
	Candidate transform.Candidate `json:"candidate"`
	Factor    float64             `json:"factor,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	Histogram []report.Bin        `json:"histogram"`
}

// Inspect inverts one row of m under every candidate the configuration
// allows and returns the value histograms, for plotting value against rank.
// A negative row selects the row detection would sample.
func Inspect(m *sparse.CSR, row int, cfg Config) ([]Inspection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := prepare(m, cfg)
	if err != nil {
		return nil, err
	}
	if row < 0 {
		row = detect.SampleRow(m)
		if row < 0 {
			return nil, fmt.Errorf("scdenorm: %w: no row has two distinct values", detect.ErrNoValidBase)
		}
	}
	if row >= m.Rows {
		return nil, fmt.Errorf("scdenorm: %w: row %d of %d", sparse.ErrOutOfRange, row, m.Rows)
	}

	bases := transform.Candidates()
	if cfg.Base.Mode == transform.BaseFixed {
		bases = []transform.Base{cfg.Base.Base}
	}
	constants := transform.Constants()
	if cfg.Constant != nil {
		constants = []float64{*cfg.Constant}
	}

	est := newDetector(cfg, report.Discard).Estimator
	var out []Inspection
	for _, b := range bases {
		for _, c := range constants {
			cand := transform.Candidate{Base: b, Constant: c}
			inverted := cand.InverseAll(m.Row(row))
			h := est.Histogram(inverted)
			in := Inspection{Candidate: cand, Histogram: report.Bins(h.Values, h.Counts, inspectBins)}
			f, err := est.Estimate(inverted)
			if err != nil {
				in.Reason = estimate.Reason(err)
			} else {
				in.Factor = f
			}
			out = append(out, in)
		}
	}
	return out, nil
}
