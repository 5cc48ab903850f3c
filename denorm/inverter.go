package denorm

import (
	"github.com/happyhackingspace/scdenorm/estimate"
	"github.com/happyhackingspace/scdenorm/transform"
)

// Inverter undoes the log transform of single rows and estimates their
// scaling factors.
type Inverter struct {
	Candidate transform.Candidate
	Estimator estimate.Estimator
}

// Invert returns row with the log transform undone. row is not modified.
func (inv Inverter) Invert(row []float64) []float64 {
	return inv.Candidate.InverseAll(row)
}

// Factor inverts row and returns the factor that maps it back to integer
// counts.
func (inv Inverter) Factor(row []float64) (float64, error) {
	return inv.Estimator.Estimate(inv.Invert(row))
}

// Check reports whether row can be denormalized.
func (inv Inverter) Check(row []float64) bool {
	_, err := inv.Factor(row)
	return err == nil
}
