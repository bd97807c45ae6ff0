package metrics

import (
	"fmt"
	"io"

	svg "github.com/ajstarks/svgo"
)

const (
	barWidth    = 40
	barGap      = 10
	barMaxH     = 200
	chartMargin = 30
)

// RenderSVG draws h as a bar chart: one bar per hop-count bin, height
// proportional to that bin's share of the busiest bin.
func (h *Histogram) RenderSVG(w io.Writer) {
	n := len(h.buckets)
	width := chartMargin*2 + n*(barWidth+barGap)
	height := chartMargin*2 + barMaxH + 20

	peak := 1
	for _, c := range h.buckets {
		if c > peak {
			peak = c
		}
	}

	canvas := svg.New(w)
	canvas.Start(width, height)
	canvas.Title(fmt.Sprintf("%s hop-count histogram", h.Label))
	canvas.Rect(0, 0, width, height, "fill:white")

	for hop, count := range h.buckets {
		barHeight := int(float64(count) / float64(peak) * barMaxH)
		x := chartMargin + hop*(barWidth+barGap)
		y := chartMargin + barMaxH - barHeight
		canvas.Rect(x, y, barWidth, barHeight, "fill:steelblue;stroke:black")
		canvas.Text(x+barWidth/2, chartMargin+barMaxH+15, fmt.Sprintf("%d", hop),
			"text-anchor:middle;font-size:12px")
		if count > 0 {
			canvas.Text(x+barWidth/2, y-5, fmt.Sprintf("%d", count),
				"text-anchor:middle;font-size:11px")
		}
	}
	canvas.End()
}
