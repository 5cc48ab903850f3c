// Package report carries diagnostics out of the denormalization core.
//
// The core never logs. It sends Events to the Reporter it was given, and the
// caller decides where they go: slog, an in-memory Recorder, or both.
package report

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"

	"github.com/happyhackingspace/scdenorm/transform"
)

// Kind classifies an event.
type Kind string

const (
	CandidateRejected Kind = "candidate_rejected"
	CandidateAccepted Kind = "candidate_accepted"
	SampleSkipped     Kind = "sample_skipped"
	AutoDetected      Kind = "auto_detected"
	RowFailed         Kind = "row_failed"
	PassSummary       Kind = "pass_summary"
	PassThrough       Kind = "pass_through"
	Info              Kind = "info"
)

// NoRow marks events that are not about a single row.
const NoRow = -1

// Event is one diagnostic record.
type Event struct {
	Kind      Kind
	Message   string
	Row       int
	Candidate *transform.Candidate
	Err       error
	// Reason is a short failure name for grouping (see estimate.Reason).
	Reason string
	// Histogram is set on CandidateRejected: the inverted sample row, for
	// plotting value against rank.
	Histogram []Bin
	Attrs     []slog.Attr
}

// Bin is one histogram entry. Rank starts at 1 for the smallest value.
type Bin struct {
	Rank  int     `json:"rank"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// MarshalJSON writes a value that overflowed or is undefined as null.
func (b Bin) MarshalJSON() ([]byte, error) {
	out := struct {
		Rank  int      `json:"rank"`
		Value *float64 `json:"value"`
		Count int      `json:"count"`
	}{Rank: b.Rank, Count: b.Count}
	if !math.IsInf(b.Value, 0) && !math.IsNaN(b.Value) {
		out.Value = &b.Value
	}
	return json.Marshal(out)
}

// Bins converts a value histogram into at most limit bins. A limit <= 0 keeps
// every value.
func Bins(values []float64, counts []int, limit int) []Bin {
	n := len(values)
	if limit > 0 && limit < n {
		n = limit
	}
	bins := make([]Bin, n)
	for i := range n {
		bins[i] = Bin{Rank: i + 1, Value: values[i], Count: counts[i]}
	}
	return bins
}

// Reporter receives events. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(Event)
}

// Discard drops every event.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(Event) {}

// Multi fans events out to several reporters.
func Multi(rs ...Reporter) Reporter {
	return multi(rs)
}

type multi []Reporter

func (m multi) Report(e Event) {
	for _, r := range m {
		r.Report(e)
	}
}

// SlogReporter writes events to a slog.Logger.
type SlogReporter struct {
	logger *slog.Logger
}

// NewSlogReporter returns a reporter on l, or on slog.Default() if l is nil.
func NewSlogReporter(l *slog.Logger) *SlogReporter {
	if l == nil {
		l = slog.Default()
	}
	return &SlogReporter{logger: l}
}

// Report implements Reporter.
func (s *SlogReporter) Report(e Event) {
	attrs := make([]slog.Attr, 0, len(e.Attrs)+4)
	attrs = append(attrs, slog.String("event", string(e.Kind)))
	if e.Row != NoRow {
		attrs = append(attrs, slog.Int("row", e.Row))
	}
	if e.Candidate != nil {
		attrs = append(attrs,
			slog.String("base", e.Candidate.Base.String()),
			slog.Float64("constant", e.Candidate.Constant))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	attrs = append(attrs, e.Attrs...)
	s.logger.LogAttrs(context.Background(), level(e.Kind), e.Message, attrs...)
}

func level(k Kind) slog.Level {
	switch k {
	case RowFailed, SampleSkipped, CandidateRejected:
		return slog.LevelDebug
	case PassThrough:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Report implements Reporter.
func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Filter returns the recorded events of kind k.
func (r *Recorder) Filter(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
