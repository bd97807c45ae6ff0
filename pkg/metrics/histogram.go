// Package metrics collects hop-count histograms for completed lookups
// and renders them both as a terminal table and as an SVG bar chart,
// the way a driver summarizing a long simulation run would.
package metrics

import (
	"fmt"
	"io"
	"strings"
)

// Histogram is a fixed-bin hop-count histogram. Values above the last
// bin are clamped into it rather than dropped, so the total count
// always equals the number of observations recorded.
type Histogram struct {
	Label   string
	MaxHop  int // values above this are clamped into the last bin
	buckets []int
}

// NewChordHistogram returns the bin layout Chord lookups report
// against: 0 through 12, values above 12 clamped to 12.
func NewChordHistogram() *Histogram {
	return &Histogram{Label: "chord", MaxHop: 12, buckets: make([]int, 13)}
}

// NewPastryHistogram returns the bin layout Pastry lookups report
// against: 0 through 10, values above 10 clamped to 10.
func NewPastryHistogram() *Histogram {
	return &Histogram{Label: "pastry", MaxHop: 10, buckets: make([]int, 11)}
}

// Record adds one observed hop count, clamping it into the last bin if
// it overruns MaxHop.
func (h *Histogram) Record(hops int) {
	if hops < 0 {
		hops = 0
	}
	if hops > h.MaxHop {
		hops = h.MaxHop
	}
	h.buckets[hops]++
}

// Total returns the number of observations recorded.
func (h *Histogram) Total() int {
	total := 0
	for _, c := range h.buckets {
		total += c
	}
	return total
}

// Count returns the number of observations in bin hop (0..MaxHop).
func (h *Histogram) Count(hop int) int {
	if hop < 0 || hop >= len(h.buckets) {
		return 0
	}
	return h.buckets[hop]
}

// WriteTable renders a plain-text bar-per-line summary to w.
func (h *Histogram) WriteTable(w io.Writer) error {
	total := h.Total()
	for hop, count := range h.buckets {
		bar := strings.Repeat("#", count)
		label := fmt.Sprintf("%2d", hop)
		if hop == h.MaxHop {
			label = fmt.Sprintf(">=%d", hop)
		}
		if _, err := fmt.Fprintf(w, "%-5s %5d  %s\n", label, count, bar); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "total %5d\n", total)
	return err
}
