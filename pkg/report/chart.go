package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/papercomputeco/tokenprobe/pkg/llm"
	"github.com/papercomputeco/tokenprobe/pkg/stream"
)

const (
	barGlyph        = "█"
	maxTimelineRows = 12
)

// TimelinePoint is the cumulative number of fragments received by Offset.
type TimelinePoint struct {
	Offset     time.Duration
	Cumulative int
}

// TimelinePoints buckets fragments into at most n evenly spaced points in
// time. The last point always covers every fragment.
func TimelinePoints(fragments []stream.Fragment, n int) []TimelinePoint {
	if len(fragments) == 0 || n <= 0 {
		return nil
	}

	last := fragments[len(fragments)-1].Offset
	if len(fragments) <= n || last <= 0 {
		points := make([]TimelinePoint, len(fragments))
		for i, f := range fragments {
			points[i] = TimelinePoint{Offset: f.Offset, Cumulative: i + 1}
		}
		return points
	}

	points := make([]TimelinePoint, 0, n)
	idx := 0
	for i := 1; i <= n; i++ {
		cutoff := last * time.Duration(i) / time.Duration(n)
		for idx < len(fragments) && fragments[idx].Offset <= cutoff {
			idx++
		}
		points = append(points, TimelinePoint{Offset: cutoff, Cumulative: idx})
	}
	return points
}

// Timeline renders the cumulative fragment count over elapsed time as a
// horizontal bar chart.
func (r *Renderer) Timeline(res *stream.Result) string {
	var b strings.Builder
	b.WriteString(r.title.Render("Token Streaming Timeline"))
	b.WriteString("\n")

	points := TimelinePoints(res.Fragments, maxTimelineRows)
	if len(points) == 0 {
		b.WriteString(r.dim.Render("no fragments received"))
		b.WriteString("\n")
		return b.String()
	}

	labels := make([]string, len(points))
	values := make([]int, len(points))
	for i, p := range points {
		labels[i] = formatSeconds(p.Offset.Seconds())
		values[i] = p.Cumulative
	}

	b.WriteString(r.bars(labels, values, 0))
	b.WriteString(r.dim.Render("time elapsed (s) → cumulative fragments received"))
	b.WriteString("\n")
	return b.String()
}

// Distribution renders server-reported prompt and completion tokens side by
// side.
func (r *Renderer) Distribution(usage *llm.Usage) string {
	var b strings.Builder
	b.WriteString(r.title.Render("Token Distribution"))
	b.WriteString("\n")

	if usage == nil {
		b.WriteString(r.dim.Render("No usage information available."))
		b.WriteString("\n")
		return b.String()
	}

	labels := []string{"Prompt Tokens", "Completion Tokens"}
	values := []int{usage.PromptTokens, usage.CompletionTokens}
	b.WriteString(r.bars(labels, values, -1))
	return b.String()
}

// bars draws one bar per label scaled to the largest value. A non-negative
// style index paints every bar the same; -1 alternates styles per row.
func (r *Renderer) bars(labels []string, values []int, style int) string {
	labelWidth := 0
	for _, l := range labels {
		labelWidth = max(labelWidth, ansi.StringWidth(l))
	}

	peak := 0
	for _, v := range values {
		peak = max(peak, v)
	}

	barWidth := max(r.width-labelWidth-10, 10)

	var b strings.Builder
	for i, label := range labels {
		length := 0
		if peak > 0 {
			length = values[i] * barWidth / peak
		}
		if values[i] > 0 && length == 0 {
			length = 1
		}

		s := style
		if s < 0 {
			s = i
		}
		bar := r.barStyles[s%len(r.barStyles)].Render(strings.Repeat(barGlyph, length))

		fmt.Fprintf(&b, "%s │ %s %s\n",
			padLeft(label, labelWidth),
			bar,
			strconv.Itoa(values[i]),
		)
	}
	return b.String()
}

func padLeft(s string, width int) string {
	w := ansi.StringWidth(s)
	if w >= width {
		return s
	}
	return strings.Repeat(" ", width-w) + s
}

// Preview shortens text to a single line of at most width cells.
func Preview(text string, width int) string {
	line := strings.Join(strings.Fields(text), " ")
	return ansi.Truncate(line, width, "…")
}
