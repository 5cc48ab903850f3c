package scdenorm

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/happyhackingspace/scdenorm/report"
	"github.com/happyhackingspace/scdenorm/sparse"
)

// GroupResult is the outcome for the rows sharing one label.
type GroupResult struct {
	Label string
	// Rows lists the input rows of the group.
	Rows []int
	*Result
}

// DenormalizeGroups splits the rows of m by label, denormalizes every group
// on its own and stacks the recovered rows in order of first appearance of
// their label. Kept and Failures, combined and per group, refer to rows of m.
// Combined Factors line up with Kept and are NaN for the rows of a group
// that passed through.
func DenormalizeGroups(ctx context.Context, m *sparse.CSR, labels []string, cfg Config, rep report.Reporter) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rep = reporterOrDefault(rep)
	if cfg.Transposed {
		m = m.Transpose()
		cfg.Transposed = false
	}
	if len(labels) != m.Rows {
		return nil, fmt.Errorf("scdenorm: %w: %d labels for %d rows", sparse.ErrDimensionMismatch, len(labels), m.Rows)
	}

	names, rows := labelGroups(labels)
	combined := &Result{}
	var parts []*sparse.CSR
	for g, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rep.Report(report.Event{
			Kind:    report.Info,
			Message: "Processing group",
			Row:     report.NoRow,
			Attrs:   []slog.Attr{slog.String("group", name), slog.Int("rows", len(rows[g]))},
		})
		sub, err := m.SelectRows(rows[g])
		if err != nil {
			return nil, fmt.Errorf("scdenorm: %w", err)
		}
		res, err := Denormalize(ctx, sub, cfg, rep)
		if err != nil {
			return nil, fmt.Errorf("scdenorm: group %q: %w", name, err)
		}

		res.Kept = remap(res.Kept, rows[g])
		for i := range res.Failures {
			res.Failures[i].Row = rows[g][res.Failures[i].Row]
		}
		combined.Kept = append(combined.Kept, res.Kept...)
		if res.Factors == nil {
			for range res.Kept {
				combined.Factors = append(combined.Factors, math.NaN())
			}
		} else {
			combined.Factors = append(combined.Factors, res.Factors...)
		}
		combined.Failures = append(combined.Failures, res.Failures...)
		combined.Groups = append(combined.Groups, GroupResult{Label: name, Rows: rows[g], Result: res})
		parts = append(parts, res.Matrix)
	}

	out, err := sparse.VStack(parts...)
	if err != nil {
		return nil, fmt.Errorf("scdenorm: %w", err)
	}
	combined.Matrix = out
	return combined, nil
}

// labelGroups numbers labels in order of first appearance and returns the
// rows of each.
func labelGroups(labels []string) ([]string, [][]int) {
	index := make(map[string]int)
	var names []string
	var rows [][]int
	for i, l := range labels {
		g, ok := index[l]
		if !ok {
			g = len(names)
			index[l] = g
			names = append(names, l)
			rows = append(rows, nil)
		}
		rows[g] = append(rows[g], i)
	}
	return names, rows
}

func remap(local, rows []int) []int {
	out := make([]int, len(local))
	for i, r := range local {
		out[i] = rows[r]
	}
	return out
}
