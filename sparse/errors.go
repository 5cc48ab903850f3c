package sparse

import "errors"

var (
	// ErrBadShape is returned when row pointers, indices and values disagree
	// with the declared dimensions.
	ErrBadShape = errors.New("sparse: invalid shape")

	// ErrOutOfRange indicates a row or column index outside the matrix.
	ErrOutOfRange = errors.New("sparse: index out of range")

	// ErrDimensionMismatch indicates incompatible operands.
	ErrDimensionMismatch = errors.New("sparse: dimension mismatch")

	// ErrEmptyMatrix is returned for matrices with no rows or no columns.
	ErrEmptyMatrix = errors.New("sparse: matrix has no rows or columns")
)
