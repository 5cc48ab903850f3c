// Package denorm recovers integer counts from a log transformed,
// total-count scaled matrix once the transform is known.
package denorm

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/scdenorm/estimate"
	"github.com/happyhackingspace/scdenorm/report"
	"github.com/happyhackingspace/scdenorm/sparse"
	"github.com/happyhackingspace/scdenorm/transform"
)

// RowFailure is a row that was dropped.
type RowFailure struct {
	Row    int
	Err    error
	Reason string
}

// Result is the outcome of a pass over a matrix.
type Result struct {
	// Matrix holds the recovered counts of the kept rows.
	Matrix *sparse.CSR
	// Kept lists the input row of every output row.
	Kept []int
	// Factors holds the scaling factor of every output row.
	Factors  []float64
	Failures []RowFailure
}

// Denormalizer runs the row pass.
type Denormalizer struct {
	Candidate transform.Candidate
	Estimator estimate.Estimator
	// Round rounds the output half to even and drops entries that become
	// zero.
	Round bool
	// Workers bounds the row pass parallelism. Zero means GOMAXPROCS.
	Workers  int
	Reporter report.Reporter
}

func (d *Denormalizer) reporter() report.Reporter {
	if d.Reporter == nil {
		return report.Discard
	}
	return d.Reporter
}

// Denormalize inverts m, estimates one factor per row and scales the rows
// that have one. Rows without a factor are reported and left out. A result
// with no rows is not an error.
func (d *Denormalizer) Denormalize(ctx context.Context, m *sparse.CSR) (*Result, error) {
	if m.IsEmpty() {
		return nil, sparse.ErrEmptyMatrix
	}
	inv := Inverter{Candidate: d.Candidate, Estimator: d.Estimator}
	factors := make([]float64, m.Rows)
	errs := make([]error, m.Rows)
	if err := d.estimateRows(ctx, m, inv, factors, errs); err != nil {
		return nil, err
	}

	res := &Result{}
	for i, err := range errs {
		if err != nil {
			f := RowFailure{Row: i, Err: err, Reason: estimate.Reason(err)}
			res.Failures = append(res.Failures, f)
			d.reporter().Report(report.Event{
				Kind:    report.RowFailed,
				Message: "Row dropped",
				Row:     i,
				Err:     err,
				Reason:  f.Reason,
			})
			continue
		}
		res.Kept = append(res.Kept, i)
		res.Factors = append(res.Factors, factors[i])
	}

	out, err := d.scale(m.Map(d.Candidate.Inverse), res.Kept, res.Factors)
	if err != nil {
		return nil, err
	}
	res.Matrix = out

	d.reporter().Report(report.Event{
		Kind:    report.PassSummary,
		Message: "Denormalization pass finished",
		Row:     report.NoRow,
		Attrs: []slog.Attr{
			slog.Int("rows", m.Rows),
			slog.Int("kept", len(res.Kept)),
			slog.Int("failed", len(res.Failures)),
		},
	})
	return res, nil
}

// estimateRows fills factors and errs for every row of m. Workers own
// contiguous bands of rows and write only to their own slots.
func (d *Denormalizer) estimateRows(ctx context.Context, m *sparse.CSR, inv Inverter, factors []float64, errs []error) error {
	numWorkers := d.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	numWorkers = min(numWorkers, m.Rows)

	var wg sync.WaitGroup
	rowsPerWorker := (m.Rows + numWorkers - 1) / numWorkers
	for w := range numWorkers {
		startRow := w * rowsPerWorker
		endRow := min(startRow+rowsPerWorker, m.Rows)
		if startRow >= endRow {
			continue
		}

		wg.Add(1)
		go func(startRow, endRow int) {
			defer wg.Done()
			for i := startRow; i < endRow; i++ {
				if ctx.Err() != nil {
					return
				}
				factors[i], errs[i] = inv.Factor(m.Row(i))
			}
		}(startRow, endRow)
	}
	wg.Wait()
	return ctx.Err()
}

func (d *Denormalizer) scale(inverted *sparse.CSR, kept []int, factors []float64) (*sparse.CSR, error) {
	if len(kept) == 0 {
		return &sparse.CSR{Cols: inverted.Cols, Indptr: []int{0}}, nil
	}
	sub, err := inverted.SelectRows(kept)
	if err != nil {
		return nil, err
	}
	out, err := sub.MulDiag(mat.NewDiagDense(len(factors), factors))
	if err != nil {
		return nil, err
	}
	if d.Round {
		out = out.Rint().EliminateZeros()
	}
	out.SortIndices()
	return out, nil
}
