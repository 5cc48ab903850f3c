package sparse

// SparseVector represents a sparse float64 vector.
type SparseVector struct {
	Indices []int
	Values  []float64
	Dim     int
}

// NewSparseVector creates a sparse vector with given dimension.
func NewSparseVector(dim int) SparseVector {
	return SparseVector{Dim: dim}
}

// ToDense converts to a dense float64 slice.
func (sv SparseVector) ToDense() []float64 {
	dense := make([]float64, sv.Dim)
	for i, idx := range sv.Indices {
		if idx < sv.Dim {
			dense[idx] = sv.Values[i]
		}
	}
	return dense
}

// Nnz returns the number of stored entries.
func (sv SparseVector) Nnz() int {
	return len(sv.Indices)
}

// FromVectors builds a CSR matrix whose rows are the given vectors. Every
// vector must have dimension cols.
func FromVectors(cols int, rows []SparseVector) (*CSR, error) {
	indptr := make([]int, 1, len(rows)+1)
	nnz := 0
	for _, v := range rows {
		nnz += v.Nnz()
	}
	indices := make([]int, 0, nnz)
	data := make([]float64, 0, nnz)
	for _, v := range rows {
		if v.Dim != cols {
			return nil, ErrDimensionMismatch
		}
		indices = append(indices, v.Indices...)
		data = append(data, v.Values...)
		indptr = append(indptr, len(indices))
	}
	m, err := NewCSR(len(rows), cols, indptr, indices, data)
	if err != nil {
		return nil, err
	}
	m.SortIndices()
	return m, nil
}
