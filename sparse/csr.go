// Package sparse provides the compressed sparse row matrix used to hold cell by
// gene expression data.
//
// Operations return new matrices and leave the receiver untouched, with the
// exception of SortIndices, which reorders storage in place.
package sparse

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CSR is a compressed sparse row matrix. Row i stores its column indices in
// Indices[Indptr[i]:Indptr[i+1]] and the matching values in Data.
type CSR struct {
	Rows    int
	Cols    int
	Indptr  []int
	Indices []int
	Data    []float64
}

// NewCSR validates the raw CSR arrays and wraps them without copying.
func NewCSR(rows, cols int, indptr, indices []int, data []float64) (*CSR, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadShape, rows, cols)
	}
	if len(indptr) != rows+1 || indptr[0] != 0 {
		return nil, fmt.Errorf("%w: indptr has %d entries for %d rows", ErrBadShape, len(indptr), rows)
	}
	if len(indices) != len(data) || indptr[rows] != len(data) {
		return nil, fmt.Errorf("%w: %d indices, %d values, indptr ends at %d", ErrBadShape, len(indices), len(data), indptr[rows])
	}
	for i := range rows {
		if indptr[i+1] < indptr[i] {
			return nil, fmt.Errorf("%w: indptr decreases at row %d", ErrBadShape, i)
		}
	}
	for _, j := range indices {
		if j < 0 || j >= cols {
			return nil, fmt.Errorf("%w: column %d", ErrOutOfRange, j)
		}
	}
	return &CSR{Rows: rows, Cols: cols, Indptr: indptr, Indices: indices, Data: data}, nil
}

// FromDense builds a CSR matrix from dense rows, skipping zeros.
func FromDense(rows [][]float64) (*CSR, error) {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	vecs := make([]SparseVector, len(rows))
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrBadShape, i, len(r), cols)
		}
		vecs[i] = NewSparseVector(cols)
		for j, v := range r {
			if v != 0 {
				vecs[i].Indices = append(vecs[i].Indices, j)
				vecs[i].Values = append(vecs[i].Values, v)
			}
		}
	}
	return FromVectors(cols, vecs)
}

// FromTriplets builds a CSR matrix from coordinate triplets. Duplicate
// coordinates are summed; column indices come out sorted.
func FromTriplets(rows, cols int, ri, ci []int, vals []float64) (*CSR, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadShape, rows, cols)
	}
	if len(ri) != len(ci) || len(ri) != len(vals) {
		return nil, fmt.Errorf("%w: %d rows, %d columns, %d values", ErrBadShape, len(ri), len(ci), len(vals))
	}
	counts := make([]int, rows+1)
	for k := range ri {
		if ri[k] < 0 || ri[k] >= rows || ci[k] < 0 || ci[k] >= cols {
			return nil, fmt.Errorf("%w: (%d, %d)", ErrOutOfRange, ri[k], ci[k])
		}
		counts[ri[k]+1]++
	}
	for i := range rows {
		counts[i+1] += counts[i]
	}
	indices := make([]int, len(ri))
	data := make([]float64, len(ri))
	next := make([]int, rows)
	copy(next, counts[:rows])
	for k := range ri {
		p := next[ri[k]]
		indices[p] = ci[k]
		data[p] = vals[k]
		next[ri[k]]++
	}
	m := &CSR{Rows: rows, Cols: cols, Indptr: counts, Indices: indices, Data: data}
	m.SortIndices()
	return m.sumDuplicates(), nil
}

// Dims returns the number of rows and columns.
func (m *CSR) Dims() (int, int) {
	return m.Rows, m.Cols
}

// IsEmpty reports whether the matrix has no rows or no columns.
func (m *CSR) IsEmpty() bool {
	return m.Rows == 0 || m.Cols == 0
}

// Nnz returns the number of stored entries.
func (m *CSR) Nnz() int {
	return len(m.Data)
}

// Row returns the stored values of row i. The slice aliases the matrix
// storage and must not be modified.
func (m *CSR) Row(i int) []float64 {
	return m.Data[m.Indptr[i]:m.Indptr[i+1]]
}

// RowIndices returns the column indices of row i, aliasing matrix storage.
func (m *CSR) RowIndices(i int) []int {
	return m.Indices[m.Indptr[i]:m.Indptr[i+1]]
}

// RowVector returns a copy of row i as a SparseVector.
func (m *CSR) RowVector(i int) SparseVector {
	sv := NewSparseVector(m.Cols)
	sv.Indices = append([]int(nil), m.RowIndices(i)...)
	sv.Values = append([]float64(nil), m.Row(i)...)
	return sv
}

// At returns the value at (i, j), zero when not stored.
func (m *CSR) At(i, j int) float64 {
	idx := m.RowIndices(i)
	for k, c := range idx {
		if c == j {
			return m.Row(i)[k]
		}
	}
	return 0
}

// Clone returns a deep copy.
func (m *CSR) Clone() *CSR {
	return &CSR{
		Rows:    m.Rows,
		Cols:    m.Cols,
		Indptr:  append([]int(nil), m.Indptr...),
		Indices: append([]int(nil), m.Indices...),
		Data:    append([]float64(nil), m.Data...),
	}
}

// Map returns a matrix with the same sparsity pattern and f applied to every
// stored value.
func (m *CSR) Map(f func(float64) float64) *CSR {
	out := m.Clone()
	for k, v := range out.Data {
		out.Data[k] = f(v)
	}
	return out
}

// EliminateZeros returns a copy without explicitly stored zeros.
func (m *CSR) EliminateZeros() *CSR {
	out := &CSR{
		Rows:    m.Rows,
		Cols:    m.Cols,
		Indptr:  make([]int, 1, m.Rows+1),
		Indices: make([]int, 0, len(m.Indices)),
		Data:    make([]float64, 0, len(m.Data)),
	}
	for i := range m.Rows {
		for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
			if m.Data[k] != 0 {
				out.Indices = append(out.Indices, m.Indices[k])
				out.Data = append(out.Data, m.Data[k])
			}
		}
		out.Indptr = append(out.Indptr, len(out.Data))
	}
	return out
}

// SelectRows returns the matrix made of the given rows, in the given order.
func (m *CSR) SelectRows(rows []int) (*CSR, error) {
	out := &CSR{
		Cols:   m.Cols,
		Rows:   len(rows),
		Indptr: make([]int, 1, len(rows)+1),
	}
	for _, i := range rows {
		if i < 0 || i >= m.Rows {
			return nil, fmt.Errorf("%w: row %d", ErrOutOfRange, i)
		}
		out.Indices = append(out.Indices, m.RowIndices(i)...)
		out.Data = append(out.Data, m.Row(i)...)
		out.Indptr = append(out.Indptr, len(out.Data))
	}
	return out, nil
}

// MulDiag returns d·m, scaling row i by the i-th diagonal entry of d.
func (m *CSR) MulDiag(d *mat.DiagDense) (*CSR, error) {
	if n := d.Diag(); n != m.Rows {
		return nil, fmt.Errorf("%w: diagonal of %d for %d rows", ErrDimensionMismatch, n, m.Rows)
	}
	out := m.Clone()
	for i := range out.Rows {
		f := d.At(i, i)
		for k := out.Indptr[i]; k < out.Indptr[i+1]; k++ {
			out.Data[k] *= f
		}
	}
	return out, nil
}

// Rint returns a copy with every value rounded to the nearest integer, ties
// to even.
func (m *CSR) Rint() *CSR {
	return m.Map(math.RoundToEven)
}

// IsIntegral reports whether every stored value is an integer.
func (m *CSR) IsIntegral() bool {
	for _, v := range m.Data {
		if v != math.Trunc(v) {
			return false
		}
	}
	return true
}

// RoundingError returns the mean absolute distance between the stored values
// and their nearest integers. It is zero for a matrix with no entries.
func (m *CSR) RoundingError() float64 {
	if len(m.Data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m.Data {
		sum += math.Abs(v - math.RoundToEven(v))
	}
	return sum / float64(len(m.Data))
}

// SortIndices sorts the column indices of every row in place.
func (m *CSR) SortIndices() {
	for i := range m.Rows {
		lo, hi := m.Indptr[i], m.Indptr[i+1]
		r := rowSorter{indices: m.Indices[lo:hi], data: m.Data[lo:hi]}
		if !sort.IsSorted(r) {
			sort.Sort(r)
		}
	}
}

// HasSortedIndices reports whether every row has ascending column indices.
func (m *CSR) HasSortedIndices() bool {
	for i := range m.Rows {
		idx := m.RowIndices(i)
		for k := 1; k < len(idx); k++ {
			if idx[k] < idx[k-1] {
				return false
			}
		}
	}
	return true
}

// Transpose returns the transposed matrix with sorted indices.
func (m *CSR) Transpose() *CSR {
	ri := make([]int, 0, m.Nnz())
	for i := range m.Rows {
		for range m.RowIndices(i) {
			ri = append(ri, i)
		}
	}
	// Inputs are in range by construction.
	t, _ := FromTriplets(m.Cols, m.Rows, m.Indices, ri, m.Data)
	return t
}

// VStack stacks matrices with the same number of columns on top of each
// other.
func VStack(ms ...*CSR) (*CSR, error) {
	if len(ms) == 0 {
		return nil, ErrEmptyMatrix
	}
	out := &CSR{Cols: ms[0].Cols, Indptr: []int{0}}
	for _, m := range ms {
		if m.Cols != out.Cols {
			return nil, fmt.Errorf("%w: %d columns, want %d", ErrDimensionMismatch, m.Cols, out.Cols)
		}
		base := len(out.Data)
		out.Indices = append(out.Indices, m.Indices...)
		out.Data = append(out.Data, m.Data...)
		for i := 1; i <= m.Rows; i++ {
			out.Indptr = append(out.Indptr, base+m.Indptr[i])
		}
		out.Rows += m.Rows
	}
	return out, nil
}

// ToDense converts the matrix to dense rows.
func (m *CSR) ToDense() [][]float64 {
	dense := make([][]float64, m.Rows)
	for i := range m.Rows {
		sv := m.RowVector(i)
		dense[i] = sv.ToDense()
	}
	return dense
}

func (m *CSR) sumDuplicates() *CSR {
	out := &CSR{
		Rows:    m.Rows,
		Cols:    m.Cols,
		Indptr:  make([]int, 1, m.Rows+1),
		Indices: make([]int, 0, len(m.Indices)),
		Data:    make([]float64, 0, len(m.Data)),
	}
	for i := range m.Rows {
		start := len(out.Data)
		for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
			if n := len(out.Data); n > start && out.Indices[n-1] == m.Indices[k] {
				out.Data[n-1] += m.Data[k]
				continue
			}
			out.Indices = append(out.Indices, m.Indices[k])
			out.Data = append(out.Data, m.Data[k])
		}
		out.Indptr = append(out.Indptr, len(out.Data))
	}
	return out
}

type rowSorter struct {
	indices []int
	data    []float64
}

func (r rowSorter) Len() int           { return len(r.indices) }
func (r rowSorter) Less(i, j int) bool { return r.indices[i] < r.indices[j] }
func (r rowSorter) Swap(i, j int) {
	r.indices[i], r.indices[j] = r.indices[j], r.indices[i]
	r.data[i], r.data[j] = r.data[j], r.data[i]
}
