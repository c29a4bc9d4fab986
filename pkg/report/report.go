// Package report renders reconciliation results for the terminal and as JSON.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/tokenprobe/pkg/stream"
)

const notAvailable = "n/a"

// Renderer draws tables and charts with a fixed color profile.
type Renderer struct {
	lg    *lipgloss.Renderer
	width int

	header    lipgloss.Style
	cell      lipgloss.Style
	border    lipgloss.Style
	title     lipgloss.Style
	dim       lipgloss.Style
	warn      lipgloss.Style
	good      lipgloss.Style
	barStyles []lipgloss.Style
}

// Option configures a Renderer.
type Option func(*rendererConfig)

type rendererConfig struct {
	profile *termenv.Profile
	width   int
}

// WithPlain disables all colors and text attributes.
func WithPlain() Option {
	return func(c *rendererConfig) {
		p := termenv.Ascii
		c.profile = &p
	}
}

// WithWidth sets the maximum chart width in cells.
func WithWidth(width int) Option {
	return func(c *rendererConfig) {
		c.width = width
	}
}

// New returns a Renderer for output written to w. The color profile is
// detected from w unless WithPlain is given.
func New(w io.Writer, opts ...Option) *Renderer {
	cfg := &rendererConfig{width: 60}
	for _, opt := range opts {
		opt(cfg)
	}

	lg := lipgloss.NewRenderer(w)
	if cfg.profile != nil {
		lg.SetColorProfile(*cfg.profile)
	}

	return &Renderer{
		lg:     lg,
		width:  max(cfg.width, 20),
		header: lg.NewStyle().Foreground(lipgloss.Color("252")).Bold(true).Padding(0, 1),
		cell:   lg.NewStyle().Padding(0, 1),
		border: lg.NewStyle().Foreground(lipgloss.Color("241")),
		title:  lg.NewStyle().Foreground(lipgloss.Color("252")).Bold(true),
		dim:    lg.NewStyle().Foreground(lipgloss.Color("241")),
		warn:   lg.NewStyle().Foreground(lipgloss.Color("214")),
		good:   lg.NewStyle().Foreground(lipgloss.Color("82")),

		barStyles: []lipgloss.Style{
			lg.NewStyle().Foreground(lipgloss.Color("117")),
			lg.NewStyle().Foreground(lipgloss.Color("210")),
		},
	}
}

func (r *Renderer) table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.border).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.header
			}
			return r.cell
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// Comparison renders local token counts beside the server-reported usage.
// Differences are shown as they are.
func (r *Renderer) Comparison(res *stream.Result) string {
	labels := map[string]string{
		"prompt":     "Prompt Tokens",
		"completion": "Completion Tokens",
		"total":      "Total Tokens",
	}

	rows := make([][]string, 0, 3)
	for _, c := range res.Comparisons() {
		server, delta := notAvailable, notAvailable
		if c.HasServer {
			server = strconv.Itoa(c.Server)
			delta = r.formatDelta(c)
		}
		local := strconv.Itoa(c.Local)
		if res.CountErr != nil && c.Label != "prompt" {
			local = notAvailable
			delta = notAvailable
		}
		rows = append(rows, []string{labels[c.Label], local, server, delta})
	}

	return r.table([]string{"Metric", "Computed", "API Usage", "Delta"}, rows)
}

func (r *Renderer) formatDelta(c stream.Comparison) string {
	d := c.Delta()
	switch {
	case d == 0:
		return r.good.Render("0")
	case d > 0:
		return r.warn.Render("+" + strconv.Itoa(d))
	default:
		return r.warn.Render(strconv.Itoa(d))
	}
}

// Summary renders a short description of how the stream ended.
func (r *Renderer) Summary(res *stream.Result) string {
	var b strings.Builder

	status := r.good.Render("complete")
	if !res.Complete() {
		status = r.warn.Render("incomplete")
	}
	fmt.Fprintf(&b, "%s %s (%s)\n", r.dim.Render("stream:"), status, res.End)
	fmt.Fprintf(&b, "%s %d fragments, %d chunks in %s\n",
		r.dim.Render("received:"), len(res.Fragments), len(res.Payloads), formatSeconds(res.Elapsed.Seconds()))

	if res.FinishReason != "" {
		fmt.Fprintf(&b, "%s %s\n", r.dim.Render("finish reason:"), res.FinishReason)
	}
	if res.UsageChunks > 1 {
		fmt.Fprintf(&b, "%s %d usage records received, the last one is shown\n", r.warn.Render("warning:"), res.UsageChunks)
	}
	if n := len(res.DecodeErrors); n > 0 {
		fmt.Fprintf(&b, "%s %d malformed stream lines skipped\n", r.warn.Render("warning:"), n)
	}
	if res.TransportErr != nil {
		fmt.Fprintf(&b, "%s %v\n", r.warn.Render("transport:"), res.TransportErr)
	}
	if res.CountErr != nil {
		fmt.Fprintf(&b, "%s %v\n", r.warn.Render("counting:"), res.CountErr)
	}

	return b.String()
}

// DebugInfo is the diagnostic context of a traced request.
type DebugInfo struct {
	ServiceID          string `json:"service_id"`
	GatewayURL         string `json:"gateway_url"`
	SubscriptionKeySet bool   `json:"subscription_key_present"`
	StatusCode         int    `json:"status_code"`
	RequestID          string `json:"request_id,omitempty"`
}

// Debug renders the diagnostic table of a traced request.
func (r *Renderer) Debug(info DebugInfo, res *stream.Result) string {
	status := notAvailable
	if info.StatusCode != 0 {
		status = strconv.Itoa(info.StatusCode)
	}

	rows := [][]string{
		{"APIM Service ID", info.ServiceID},
		{"API Gateway URL", info.GatewayURL},
		{"Subscription Key Present", strconv.FormatBool(info.SubscriptionKeySet)},
		{"Response Status Code", status},
	}
	if info.RequestID != "" {
		rows = append(rows, []string{"Request ID", info.RequestID})
	}
	rows = append(rows,
		[]string{"Token Count", strconv.Itoa(len(res.Fragments))},
		[]string{"Usage Info Available", strconv.FormatBool(res.ServerUsage != nil)},
	)

	return r.table([]string{"Metric", "Value"}, rows)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 2, 64) + "s"
}
