package estimate

import (
	"sort"
)

// Histogram maps each distinct value of a row to its number of occurrences.
// Values are ascending; Counts[i] belongs to Values[i].
type Histogram struct {
	Values []float64
	Counts []int
}

// NewHistogram builds the histogram of values. The input is not modified.
func NewHistogram(values []float64) Histogram {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var h Histogram
	for i, v := range sorted {
		if i > 0 && v == sorted[i-1] {
			h.Counts[len(h.Counts)-1]++
			continue
		}
		h.Values = append(h.Values, v)
		h.Counts = append(h.Counts, 1)
	}
	return h
}

// Len returns the number of distinct values.
func (h Histogram) Len() int {
	return len(h.Values)
}

// ByFrequency returns positions into Values ordered by descending count.
// Equal counts keep ascending value order.
func (h Histogram) ByFrequency() []int {
	order := make([]int, len(h.Values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return h.Counts[order[a]] > h.Counts[order[b]]
	})
	return order
}

// SmallestAreMostFrequent reports whether the smallest value is the most
// frequent and the second smallest the second most frequent.
func (h Histogram) SmallestAreMostFrequent() bool {
	if h.Len() < 2 {
		return false
	}
	top := h.ByFrequency()
	return top[0] == 0 && top[1] == 1
}

// Head returns the first n distinct values, or all of them if there are
// fewer.
func (h Histogram) Head(n int) []float64 {
	if n > len(h.Values) {
		n = len(h.Values)
	}
	return h.Values[:n]
}
