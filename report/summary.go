package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/happyhackingspace/scdenorm/transform"
)

// Summary is the JSON diagnostics file written after a run.
type Summary struct {
	RunID         string               `json:"run_id"`
	Created       time.Time            `json:"created"`
	Input         string               `json:"input,omitempty"`
	Group         string               `json:"group,omitempty"`
	Candidate     *transform.Candidate `json:"candidate,omitempty"`
	Method        string               `json:"method"`
	Rows          int                  `json:"rows"`
	Kept          int                  `json:"kept"`
	PassedThrough bool                 `json:"passed_through"`
	Failures      map[string]int       `json:"failures,omitempty"`
	FactorMean    float64              `json:"factor_mean"`
	FactorStdDev  float64              `json:"factor_std_dev"`
	Rejected      []RejectedCandidate  `json:"rejected_candidates,omitempty"`
	Groups        []*Summary           `json:"groups,omitempty"`
}

// RejectedCandidate keeps the histogram of a sample row under a candidate
// that did not fit.
type RejectedCandidate struct {
	Candidate transform.Candidate `json:"candidate"`
	Histogram []Bin               `json:"histogram"`
}

// NewSummary returns a summary with a fresh run ID.
func NewSummary() *Summary {
	return &Summary{
		RunID:    uuid.New().String(),
		Created:  time.Now().UTC(),
		Failures: make(map[string]int),
	}
}

// AddFactors records mean and standard deviation of the finite scaling
// factors.
func (s *Summary) AddFactors(factors []float64) {
	finite := make([]float64, 0, len(factors))
	for _, f := range factors {
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			finite = append(finite, f)
		}
	}
	factors = finite
	switch len(factors) {
	case 0:
		return
	case 1:
		s.FactorMean = factors[0]
		return
	}
	s.FactorMean, s.FactorStdDev = stat.MeanStdDev(factors, nil)
}

// AddEvents folds row failures and rejected candidates into the summary.
func (s *Summary) AddEvents(events []Event) {
	for _, e := range events {
		switch e.Kind {
		case RowFailed:
			s.Failures[e.Reason]++
		case CandidateRejected:
			if e.Candidate != nil {
				s.Rejected = append(s.Rejected, RejectedCandidate{
					Candidate: *e.Candidate,
					Histogram: e.Histogram,
				})
			}
		}
	}
}

// Write encodes the summary as indented JSON.
func (s *Summary) Write(w io.Writer) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Save writes the summary to path.
func (s *Summary) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary: %w", err)
	}
	if err := s.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
