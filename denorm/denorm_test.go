package denorm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/scdenorm/estimate"
	"github.com/happyhackingspace/scdenorm/report"
	"github.com/happyhackingspace/scdenorm/sparse"
	"github.com/happyhackingspace/scdenorm/transform"
)

var counts = [][]float64{
	{1, 1, 1, 2, 2, 5, 0, 0},
	{0, 1, 1, 1, 1, 2, 2, 3},
	{1, 1, 1, 1, 1, 2, 2, 7},
	{4, 1, 1, 0, 2, 1, 0, 9},
}

// normalize scales every row to 1e4 total counts and applies log(x + 1).
func normalize(t *testing.T, rows [][]float64) *sparse.CSR {
	t.Helper()
	out := make([][]float64, len(rows))
	for i, r := range rows {
		var total float64
		for _, v := range r {
			total += v
		}
		out[i] = make([]float64, len(r))
		for j, v := range r {
			out[i][j] = math.Log1p(v * 1e4 / total)
		}
	}
	m, err := sparse.FromDense(out)
	require.NoError(t, err)
	return m
}

func identity() transform.Candidate {
	return transform.Candidate{Base: transform.None, Constant: 0}
}

func TestInverter(t *testing.T) {
	inv := Inverter{Candidate: identity(), Estimator: estimate.New(estimate.Top2)}
	row := []float64{2, 2, 2, 4, 4, 6}

	f, err := inv.Factor(row)
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)
	assert.True(t, inv.Check(row))
	assert.False(t, inv.Check([]float64{5, 5, 5}))

	inv.Candidate = transform.Candidate{Base: transform.Two, Constant: 1}
	assert.Equal(t, []float64{1, 3}, inv.Invert([]float64{1, 2}))
}

func TestDenormalizeExample(t *testing.T) {
	m, err := sparse.FromDense([][]float64{
		{2, 2, 2, 4, 4, 6},
		{5, 5, 5, 0, 0, 0},
	})
	require.NoError(t, err)
	rec := report.NewRecorder()
	d := &Denormalizer{Candidate: identity(), Estimator: estimate.New(estimate.Top2), Round: true, Reporter: rec}

	res, err := d.Denormalize(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Kept)
	assert.Equal(t, []float64{0.5}, res.Factors)
	assert.Equal(t, [][]float64{{1, 1, 1, 2, 2, 3}}, res.Matrix.ToDense())

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Row)
	assert.ErrorIs(t, res.Failures[0].Err, estimate.ErrInsufficientDistinctValues)
	assert.Equal(t, "insufficient_distinct_values", res.Failures[0].Reason)

	assert.Len(t, rec.Filter(report.RowFailed), 1)
	assert.Len(t, rec.Filter(report.PassSummary), 1)
}

func TestDenormalizeIdempotent(t *testing.T) {
	m, err := sparse.FromDense(counts)
	require.NoError(t, err)
	d := &Denormalizer{Candidate: identity(), Estimator: estimate.New(estimate.Top2), Round: true}

	res, err := d.Denormalize(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, res.Kept)
	assert.Equal(t, counts, res.Matrix.ToDense())
	for _, f := range res.Factors {
		assert.Equal(t, 1.0, f)
	}
}

func TestDenormalizeRoundTrip(t *testing.T) {
	for _, workers := range []int{1, 3, 0} {
		d := &Denormalizer{
			Candidate: transform.Candidate{Base: transform.E, Constant: 1},
			Estimator: estimate.New(estimate.Top2),
			Round:     true,
			Workers:   workers,
		}
		res, err := d.Denormalize(context.Background(), normalize(t, counts))
		require.NoError(t, err)
		assert.Equal(t, counts, res.Matrix.ToDense(), "workers %d", workers)
		assert.Empty(t, res.Failures)
		assert.True(t, res.Matrix.HasSortedIndices())
	}
}

func TestDenormalizeRoundTripReg(t *testing.T) {
	// Reg needs the counts 1, 2 and 3 in every row.
	rows := [][]float64{
		{1, 1, 1, 2, 2, 3, 0, 6},
		{1, 1, 1, 1, 2, 2, 3, 4},
		{0, 1, 1, 2, 3, 1, 2, 1},
	}
	d := &Denormalizer{
		Candidate: transform.Candidate{Base: transform.E, Constant: 1},
		Estimator: estimate.New(estimate.Reg),
		Round:     true,
	}
	res, err := d.Denormalize(context.Background(), normalize(t, rows))
	require.NoError(t, err)
	assert.Equal(t, rows, res.Matrix.ToDense())
}

func TestDenormalizeWithoutRounding(t *testing.T) {
	d := &Denormalizer{
		Candidate: transform.Candidate{Base: transform.E, Constant: 1},
		Estimator: estimate.New(estimate.Top2),
	}
	res, err := d.Denormalize(context.Background(), normalize(t, counts))
	require.NoError(t, err)
	for i, row := range res.Matrix.ToDense() {
		assert.InDeltaSlice(t, counts[i], row, 1e-6)
	}
}

func TestDenormalizeDropsEmptyRows(t *testing.T) {
	rows := [][]float64{
		{1, 1, 2, 0},
		{0, 0, 0, 0},
		{1, 1, 1, 3},
	}
	m, err := sparse.FromDense(rows)
	require.NoError(t, err)
	d := &Denormalizer{Candidate: identity(), Estimator: estimate.New(estimate.Top2), Round: true}

	res, err := d.Denormalize(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, res.Kept)
	assert.Equal(t, [][]float64{rows[0], rows[2]}, res.Matrix.ToDense())
}

func TestDenormalizeAllRowsFail(t *testing.T) {
	m, err := sparse.FromDense([][]float64{{3, 3}, {0, 7}})
	require.NoError(t, err)
	d := &Denormalizer{Candidate: identity(), Estimator: estimate.New(estimate.Top2), Round: true}

	res, err := d.Denormalize(context.Background(), m)
	require.NoError(t, err)
	assert.Zero(t, res.Matrix.Rows)
	assert.Equal(t, 2, res.Matrix.Cols)
	assert.Empty(t, res.Kept)
	assert.Len(t, res.Failures, 2)
}

func TestDenormalizeEmptyMatrix(t *testing.T) {
	d := &Denormalizer{Candidate: identity(), Estimator: estimate.New(estimate.Top2)}
	_, err := d.Denormalize(context.Background(), &sparse.CSR{Cols: 3, Indptr: []int{0}})
	assert.ErrorIs(t, err, sparse.ErrEmptyMatrix)
}

func TestDenormalizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &Denormalizer{Candidate: identity(), Estimator: estimate.New(estimate.Top2)}

	m, err := sparse.FromDense(counts)
	require.NoError(t, err)
	_, err = d.Denormalize(ctx, m)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDenormalizeLeavesInputUntouched(t *testing.T) {
	m := normalize(t, counts)
	before := m.Clone()
	d := &Denormalizer{Candidate: transform.Candidate{Base: transform.E, Constant: 1}, Estimator: estimate.New(estimate.Top2), Round: true}

	_, err := d.Denormalize(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, before, m)
}
