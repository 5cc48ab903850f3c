package scdenorm

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

// normalize scales every row to 1e4 total counts and applies f.
func normalize(t *testing.T, rows [][]float64, f func(float64) float64) *sparse.CSR {
	t.Helper()
	out := make([][]float64, len(rows))
	for i, r := range rows {
		var total float64
		for _, v := range r {
			total += v
		}
		out[i] = make([]float64, len(r))
		for j, v := range r {
			if v != 0 {
				out[i][j] = f(v * 1e4 / total)
			}
		}
	}
	m, err := sparse.FromDense(out)
	require.NoError(t, err)
	return m
}

func log2p(x float64) float64 { return math.Log2(x + 1) }

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	neg := -1.0
	tests := map[string]func(*Config){
		"method":         func(c *Config) { c.Method = estimate.Method(9) },
		"tolerance":      func(c *Config) { c.Tolerance = 0 },
		"auto tolerance": func(c *Config) { c.AutoTolerance = math.NaN() },
		"workers":        func(c *Config) { c.Workers = -2 },
		"sample rows":    func(c *Config) { c.SampleRows = -1 },
		"pass rate":      func(c *Config) { c.MinPassRate = 1.5 },
		"constant":       func(c *Config) { c.Constant = &neg },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestDenormalizeRoundTrip(t *testing.T) {
	rec := report.NewRecorder()
	res, err := Denormalize(context.Background(), normalize(t, counts, math.Log1p), DefaultConfig(), rec)
	require.NoError(t, err)

	require.NotNil(t, res.Candidate)
	assert.Equal(t, transform.E, res.Candidate.Base)
	assert.Equal(t, 1.0, res.Candidate.Constant)
	assert.Equal(t, counts, res.Matrix.ToDense())
	assert.Equal(t, []int{0, 1, 2, 3}, res.Kept)
	assert.False(t, res.PassedThrough)
	assert.Len(t, rec.Filter(report.PassSummary), 1)
}

func TestDenormalizeBaseTwo(t *testing.T) {
	res, err := Denormalize(context.Background(), normalize(t, counts, log2p), DefaultConfig(), report.Discard)
	require.NoError(t, err)
	assert.Equal(t, transform.Two, res.Candidate.Base)
	assert.Equal(t, counts, res.Matrix.ToDense())
}

func TestDenormalizeReducedPrecisionOverflow(t *testing.T) {
	// Under base e the larger log2 values invert past the half precision
	// range, which must reject the candidate rather than accept it.
	cfg := DefaultConfig()
	cfg.ReducedPrecision = true
	res, err := Denormalize(context.Background(), normalize(t, counts, log2p), cfg, report.Discard)
	require.NoError(t, err)
	require.NotNil(t, res.Candidate)
	assert.Equal(t, transform.Candidate{Base: transform.Two, Constant: 1}, *res.Candidate)
	assert.Equal(t, []int{0, 1, 2, 3}, res.Kept)
	assert.Equal(t, counts, res.Matrix.ToDense())
}

func TestDenormalizeFixedBaseSweepsConstant(t *testing.T) {
	sample := []float64{1, 1, 1, 1, 2, 2, 3, 5}
	rows := make([][]float64, 3)
	for i, s := range []float64{0.25, 0.5, 0.2} {
		rows[i] = make([]float64, len(sample))
		for j, c := range sample {
			rows[i][j] = math.Log2(c*s + 0.1)
		}
	}
	m, err := sparse.FromDense(rows)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Base = transform.Fixed(transform.Two)
	cfg.Constant = nil
	res, err := Denormalize(context.Background(), m, cfg, report.Discard)
	require.NoError(t, err)
	assert.Equal(t, 0.1, res.Candidate.Constant)
	for _, row := range res.Matrix.ToDense() {
		assert.Equal(t, sample, row)
	}
}

func TestDenormalizeAutoBase(t *testing.T) {
	base := []float64{1, 1, 1, 2, 2, 4}
	dense := make([][]float64, 50)
	for i := range dense {
		s := 0.2 + 0.1*float64(i)
		dense[i] = make([]float64, len(base))
		for j, c := range base {
			dense[i][j] = math.Log1p(c * s)
		}
	}
	m, err := sparse.FromDense(dense)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Base = transform.Auto
	rec := report.NewRecorder()
	res, err := Denormalize(context.Background(), m, cfg, rec)
	require.NoError(t, err)
	assert.InDelta(t, math.E, res.Candidate.Base.Value(), 1e-2)
	assert.Len(t, res.Kept, 50)
	for _, row := range res.Matrix.ToDense() {
		assert.Equal(t, base, row)
	}
	assert.Len(t, rec.Filter(report.AutoDetected), 1)
}

func TestDenormalizeIntegralInput(t *testing.T) {
	m, err := sparse.FromDense(counts)
	require.NoError(t, err)
	res, err := Denormalize(context.Background(), m, DefaultConfig(), report.Discard)
	require.NoError(t, err)
	assert.True(t, res.Integral)
	assert.Nil(t, res.Candidate)
	assert.Equal(t, counts, res.Matrix.ToDense())
	assert.Equal(t, []float64{1, 1, 1, 1}, res.Factors)
}

func TestDenormalizeNearIntegralInput(t *testing.T) {
	noisy := make([][]float64, len(counts))
	for i, r := range counts {
		noisy[i] = make([]float64, len(r))
		for j, v := range r {
			if v != 0 {
				noisy[i][j] = v + 0.01
			}
		}
	}
	m, err := sparse.FromDense(noisy)
	require.NoError(t, err)
	res, err := Denormalize(context.Background(), m, DefaultConfig(), report.Discard)
	require.NoError(t, err)
	assert.True(t, res.Rounded)
	assert.False(t, res.Integral)
	assert.Equal(t, counts, res.Matrix.ToDense())
}

func TestDenormalizePassThrough(t *testing.T) {
	rows := [][]float64{
		{0.3, 0.6, 0.6, 0.6, 0.9},
		{0.3, 0.6, 0.6, 0.9, 0.9},
	}
	m, err := sparse.FromDense(rows)
	require.NoError(t, err)
	rec := report.NewRecorder()

	res, err := Denormalize(context.Background(), m, DefaultConfig(), rec)
	require.NoError(t, err)
	assert.True(t, res.PassedThrough)
	assert.Nil(t, res.Candidate)
	assert.Equal(t, rows, res.Matrix.ToDense())
	assert.Nil(t, res.Factors)

	events := rec.Filter(report.PassThrough)
	require.Len(t, events, 1)
	assert.NotNil(t, events[0].Err)
}

func TestDenormalizeTransposed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transposed = true
	res, err := Denormalize(context.Background(), normalize(t, counts, math.Log1p).Transpose(), cfg, report.Discard)
	require.NoError(t, err)
	assert.Equal(t, counts, res.Matrix.ToDense())
}

func TestDenormalizeErrors(t *testing.T) {
	ctx := context.Background()
	_, err := Denormalize(ctx, &sparse.CSR{Cols: 4, Indptr: []int{0}}, DefaultConfig(), report.Discard)
	assert.ErrorIs(t, err, sparse.ErrEmptyMatrix)

	cfg := DefaultConfig()
	cfg.Tolerance = -1
	_, err = Denormalize(ctx, normalize(t, counts, math.Log1p), cfg, report.Discard)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDenormalizeGroups(t *testing.T) {
	// Rows 0 and 2 use ln(x+1), rows 1 and 3 use log2(x+1).
	e := normalize(t, counts, math.Log1p).ToDense()
	two := normalize(t, counts, log2p).ToDense()
	m, err := sparse.FromDense([][]float64{e[0], two[1], e[2], two[3]})
	require.NoError(t, err)

	res, err := DenormalizeGroups(context.Background(), m, []string{"a", "b", "a", "b"}, DefaultConfig(), report.Discard)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 1, 3}, res.Kept)
	assert.Equal(t, [][]float64{counts[0], counts[2], counts[1], counts[3]}, res.Matrix.ToDense())
	require.Len(t, res.Groups, 2)
	assert.Equal(t, "a", res.Groups[0].Label)
	assert.Equal(t, []int{0, 2}, res.Groups[0].Rows)
	assert.Equal(t, transform.E, res.Groups[0].Candidate.Base)
	assert.Equal(t, transform.Two, res.Groups[1].Candidate.Base)
}

func TestDenormalizeGroupsMapsFailures(t *testing.T) {
	rows := normalize(t, counts, math.Log1p).ToDense()
	flat := []float64{0.7, 0.7, 0, 0, 0, 0, 0, 0}
	m, err := sparse.FromDense([][]float64{rows[0], rows[1], flat, rows[2], rows[3]})
	require.NoError(t, err)

	res, err := DenormalizeGroups(context.Background(), m, []string{"x", "y", "y", "y", "x"}, DefaultConfig(), report.Discard)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 1, 3}, res.Kept)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 2, res.Failures[0].Row)
	assert.ErrorIs(t, res.Failures[0].Err, estimate.ErrInsufficientDistinctValues)
}

func TestDenormalizeGroupsPassThroughFactors(t *testing.T) {
	rows := normalize(t, counts, math.Log1p).ToDense()
	m, err := sparse.FromDense([][]float64{
		{0.3, 0.6, 0.6, 0.6, 0.9, 0, 0, 0},
		{0.3, 0.6, 0.6, 0.9, 0.9, 0, 0, 0},
		rows[0],
		rows[1],
	})
	require.NoError(t, err)

	res, err := DenormalizeGroups(context.Background(), m, []string{"p", "p", "q", "q"}, DefaultConfig(), report.Discard)
	require.NoError(t, err)
	require.Len(t, res.Groups, 2)
	assert.True(t, res.Groups[0].PassedThrough)
	assert.False(t, res.Groups[1].PassedThrough)

	assert.Equal(t, []int{0, 1, 2, 3}, res.Kept)
	require.Len(t, res.Factors, len(res.Kept))
	assert.True(t, math.IsNaN(res.Factors[0]))
	assert.True(t, math.IsNaN(res.Factors[1]))
	assert.InDelta(t, 12.0/1e4, res.Factors[2], 1e-12)
	assert.InDelta(t, 11.0/1e4, res.Factors[3], 1e-12)

	s := report.NewSummary()
	s.AddFactors(res.Factors)
	assert.InDelta(t, 11.5/1e4, s.FactorMean, 1e-12)
}

func TestDenormalizeGroupsLabelMismatch(t *testing.T) {
	_, err := DenormalizeGroups(context.Background(), normalize(t, counts, math.Log1p), []string{"a"}, DefaultConfig(), report.Discard)
	assert.ErrorIs(t, err, sparse.ErrDimensionMismatch)
}

func TestLabelGroups(t *testing.T) {
	names, rows := labelGroups([]string{"b", "a", "b", "c", "a"})
	assert.Equal(t, []string{"b", "a", "c"}, names)
	assert.Equal(t, [][]int{{0, 2}, {1, 4}, {3}}, rows)
}

func TestDetect(t *testing.T) {
	cand, err := Detect(normalize(t, counts, log2p), DefaultConfig(), report.Discard)
	require.NoError(t, err)
	assert.Equal(t, transform.Candidate{Base: transform.Two, Constant: 1}, cand)

	_, err = Detect(&sparse.CSR{Cols: 1, Indptr: []int{0}}, DefaultConfig(), report.Discard)
	assert.ErrorIs(t, err, sparse.ErrEmptyMatrix)
}

func TestInspect(t *testing.T) {
	m := normalize(t, counts, math.Log1p)

	got, err := Inspect(m, -1, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, got, len(transform.Candidates()))
	assert.Equal(t, transform.E, got[0].Candidate.Base)
	assert.Empty(t, got[0].Reason)
	assert.InDelta(t, 12.0/1e4, got[0].Factor, 1e-12)
	assert.Equal(t, 1, got[0].Histogram[0].Rank)
	assert.Equal(t, 3, got[0].Histogram[0].Count)
	assert.NotEmpty(t, got[2].Reason)

	cfg := DefaultConfig()
	cfg.Base = transform.Fixed(transform.Two)
	cfg.Constant = nil
	got, err = Inspect(m, 1, cfg)
	require.NoError(t, err)
	assert.Len(t, got, len(transform.Constants()))

	_, err = Inspect(m, 9, DefaultConfig())
	assert.ErrorIs(t, err, sparse.ErrOutOfRange)
}
