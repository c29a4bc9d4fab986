package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/papercomputeco/tokenprobe/pkg/llm"
	"github.com/papercomputeco/tokenprobe/pkg/stream"
)

// Counts is the machine-readable pair of local and server counts.
type Counts struct {
	Local  int  `json:"local"`
	Server *int `json:"server,omitempty"`
	Delta  *int `json:"delta,omitempty"`
}

// FragmentJSON is one received fragment with its offset in seconds.
type FragmentJSON struct {
	Text   string  `json:"text"`
	Offset float64 `json:"offset_seconds"`
}

// Document is the JSON encoding of a reconciliation result.
type Document struct {
	RequestID      string           `json:"request_id,omitempty"`
	Model          string           `json:"token_model,omitempty"`
	Encoding       string           `json:"encoding,omitempty"`
	Text           string           `json:"text"`
	Complete       bool             `json:"complete"`
	End            string           `json:"end"`
	FinishReason   string           `json:"finish_reason,omitempty"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
	Prompt         Counts           `json:"prompt_tokens"`
	Completion     Counts           `json:"completion_tokens"`
	Total          Counts           `json:"total_tokens"`
	ServerUsage    *llm.Usage       `json:"server_usage,omitempty"`
	UsageChunks    int              `json:"usage_chunks"`
	Fragments      []FragmentJSON   `json:"fragments"`
	DecodeErrors   []string         `json:"decode_errors,omitempty"`
	TransportError string           `json:"transport_error,omitempty"`
	CountError     string           `json:"count_error,omitempty"`
	Debug          *DebugInfo       `json:"debug,omitempty"`
	Payloads       []map[string]any `json:"payloads,omitempty"`
}

// NewDocument builds the JSON document for res. Raw payloads are included
// only when withPayloads is set.
func NewDocument(res *stream.Result, withPayloads bool) *Document {
	doc := &Document{
		Text:           res.Text,
		Complete:       res.Complete(),
		End:            res.End.String(),
		FinishReason:   res.FinishReason,
		ElapsedSeconds: res.Elapsed.Seconds(),
		ServerUsage:    res.ServerUsage,
		UsageChunks:    res.UsageChunks,
		Fragments:      make([]FragmentJSON, 0, len(res.Fragments)),
	}

	cmp := res.Comparisons()
	doc.Prompt = countsFor(cmp[0])
	doc.Completion = countsFor(cmp[1])
	doc.Total = countsFor(cmp[2])

	for _, f := range res.Fragments {
		doc.Fragments = append(doc.Fragments, FragmentJSON{Text: f.Text, Offset: f.Offset.Seconds()})
	}
	for _, de := range res.DecodeErrors {
		doc.DecodeErrors = append(doc.DecodeErrors, de.Error())
	}
	if res.TransportErr != nil {
		doc.TransportError = res.TransportErr.Error()
	}
	if res.CountErr != nil {
		doc.CountError = res.CountErr.Error()
	}
	if withPayloads {
		doc.Payloads = res.Payloads
	}

	return doc
}

func countsFor(c stream.Comparison) Counts {
	out := Counts{Local: c.Local}
	if c.HasServer {
		server, delta := c.Server, c.Delta()
		out.Server = &server
		out.Delta = &delta
	}
	return out
}

// WriteJSON writes doc to w as indented JSON.
func WriteJSON(w io.Writer, doc *Document) error {
	return writeIndented(w, doc)
}

// WritePayloads writes the raw chunk payloads to w as an indented JSON array.
func WritePayloads(w io.Writer, payloads []map[string]any) error {
	if payloads == nil {
		payloads = []map[string]any{}
	}
	return writeIndented(w, payloads)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}
