package estimate

import "errors"

var (
	// ErrRowRejected is wrapped by every per-row failure below. Callers drop
	// the row and continue.
	ErrRowRejected = errors.New("estimate: row rejected")

	// ErrInsufficientDistinctValues means the row has fewer than two distinct
	// values, so it carries no frequency signal.
	ErrInsufficientDistinctValues = rowError("fewer than two distinct values")

	// ErrRankFrequencyMismatch means the two smallest values are not the two
	// most frequent ones.
	ErrRankFrequencyMismatch = rowError("two smallest values are not the two most frequent")

	// ErrNotIntegerConsistent means the rescaled values deviate from integers
	// by more than the tolerance.
	ErrNotIntegerConsistent = rowError("rescaled values are not close to integers")

	// ErrNonPositiveValues means the inverted row holds zero or negative
	// values, which no scaling factor can map to positive counts.
	ErrNonPositiveValues = rowError("non-positive values after inversion")

	// ErrUnknownMethod is a configuration error, not a row failure.
	ErrUnknownMethod = errors.New("estimate: unknown method")
)

type rowErr struct {
	msg string
}

func rowError(msg string) error {
	return &rowErr{msg: msg}
}

func (e *rowErr) Error() string {
	return "estimate: " + e.msg
}

func (e *rowErr) Unwrap() error {
	return ErrRowRejected
}

// Reason returns a short stable name for a per-row error, suitable for
// grouping failures in reports.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientDistinctValues):
		return "insufficient_distinct_values"
	case errors.Is(err, ErrRankFrequencyMismatch):
		return "rank_frequency_mismatch"
	case errors.Is(err, ErrNotIntegerConsistent):
		return "not_integer_consistent"
	case errors.Is(err, ErrNonPositiveValues):
		return "non_positive_values"
	case err == nil:
		return ""
	default:
		return "other"
	}
}
