package stream

import (
	"time"

	"github.com/papercomputeco/tokenprobe/pkg/llm"
)

// Fragment is one received piece of delta text.
type Fragment struct {
	// Index is the 0-based position among text fragments.
	Index int

	// Text is the delta text.
	Text string

	// Offset is the time elapsed since the request started.
	Offset time.Duration
}

// Result is the final, immutable report of a reconciled stream.
type Result struct {
	// Locally computed counts.
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	// ServerUsage is the last usage record received, nil when none arrived.
	ServerUsage *llm.Usage

	// UsageChunks is how many chunks carried a usage record.
	UsageChunks int

	// Text is the concatenation of all fragments in arrival order.
	Text string

	// Fragments are the received text fragments in arrival order.
	Fragments []Fragment

	// Payloads are the raw decoded chunk payloads in arrival order, including
	// chunks that carried neither text nor usage.
	Payloads []map[string]any

	// FinishReason is the last finish reason reported by the server.
	FinishReason string

	// DecodeErrors are the malformed lines that were skipped.
	DecodeErrors []*DecodeError

	// End records how the stream ended.
	End EndReason

	// TransportErr is set when the stream ended with a transport failure.
	TransportErr error

	// CountErr is set when the completion tokens could not be counted; the
	// local completion and total counts are then zero.
	CountErr error

	// Elapsed is the time from request start until the stream ended.
	Elapsed time.Duration
}

// Complete reports whether the stream ended without a transport failure.
func (r *Result) Complete() bool {
	return r.End == EndTerminator || r.End == EndExhausted
}

// Comparison pairs a locally computed count with the server-reported one.
type Comparison struct {
	Label     string
	Local     int
	Server    int
	HasServer bool
}

// Delta is local minus server. It is zero when no server count exists.
func (c Comparison) Delta() int {
	if !c.HasServer {
		return 0
	}
	return c.Local - c.Server
}

// Matches reports whether a server count exists and equals the local one.
func (c Comparison) Matches() bool {
	return c.HasServer && c.Local == c.Server
}

// Comparisons returns prompt, completion and total counts side by side.
// Discrepancies are surfaced as they are, never reconciled.
func (r *Result) Comparisons() []Comparison {
	cmp := []Comparison{
		{Label: "prompt", Local: r.PromptTokens},
		{Label: "completion", Local: r.CompletionTokens},
		{Label: "total", Local: r.TotalTokens},
	}

	if r.ServerUsage != nil {
		cmp[0].Server, cmp[0].HasServer = r.ServerUsage.PromptTokens, true
		cmp[1].Server, cmp[1].HasServer = r.ServerUsage.CompletionTokens, true
		cmp[2].Server, cmp[2].HasServer = r.ServerUsage.TotalTokens, true
	}

	return cmp
}
