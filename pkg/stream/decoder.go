// Package stream decodes streamed chat completions and reconciles locally
// computed token counts against the usage reported by the server.
//
// The flow is a synchronous pull: a Reconciler drives a Decoder one Event at
// a time, and the Decoder pulls one line at a time from a LineSource. The
// only blocking point is the LineSource waiting on the network.
package stream

import (
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/papercomputeco/tokenprobe/pkg/logger"
	"github.com/papercomputeco/tokenprobe/pkg/sse"
)

// Terminator is the data payload that signals a clean end of stream.
const Terminator = "[DONE]"

// LineSource yields raw stream lines. It returns io.EOF once the stream is
// exhausted; any other error is a transport failure.
type LineSource interface {
	NextLine() (string, error)
}

// Kind distinguishes decoded events.
type Kind int

const (
	// KindChunk carries a decoded Chunk.
	KindChunk Kind = iota

	// KindDecodeError reports a malformed line; decoding continues.
	KindDecodeError

	// KindTransportError is the terminal failure marker; decoding stops.
	KindTransportError
)

func (k Kind) String() string {
	switch k {
	case KindChunk:
		return "chunk"
	case KindDecodeError:
		return "decode_error"
	case KindTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Event is a single decoder output.
type Event struct {
	Kind Kind

	// Chunk is set for KindChunk.
	Chunk *Chunk

	// Err is a *DecodeError for KindDecodeError and a *TransportError for
	// KindTransportError.
	Err error
}

// EndReason records how a stream ended.
type EndReason int

const (
	// EndNone means the stream has not ended yet.
	EndNone EndReason = iota

	// EndTerminator means the sentinel terminator was received.
	EndTerminator

	// EndExhausted means the transport ran out of lines without a terminator.
	EndExhausted

	// EndTransportFailure means the transport failed mid-stream.
	EndTransportFailure
)

func (e EndReason) String() string {
	switch e {
	case EndNone:
		return "none"
	case EndTerminator:
		return "terminator"
	case EndExhausted:
		return "exhausted"
	case EndTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Decoder turns stream lines into Events. It is single-pass: once the
// terminator, exhaustion or a transport failure is observed, Next keeps
// returning false.
type Decoder struct {
	src    LineSource
	logger *slog.Logger

	lineNumber int
	end        EndReason
}

// NewDecoder creates a Decoder reading from src. A nil logger discards logs.
func NewDecoder(src LineSource, l *slog.Logger) *Decoder {
	return &Decoder{
		src:    src,
		logger: logger.OrNop(l),
	}
}

// Next returns the next event. ok is false once the stream has ended; End
// then reports why.
func (d *Decoder) Next() (ev Event, ok bool) {
	if d.end != EndNone {
		return Event{}, false
	}

	for {
		raw, err := d.src.NextLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.end = EndExhausted
				return Event{}, false
			}

			d.end = EndTransportFailure
			d.logger.Error("stream transport failed", "line", d.lineNumber, "error", err)
			return Event{Kind: KindTransportError, Err: asTransportError(err)}, true
		}
		d.lineNumber++

		line, ok := sse.ParseLine(raw)
		if !ok {
			continue
		}

		if !line.IsData() {
			d.logger.Debug("ignoring unrecognized stream line", "line", d.lineNumber, "raw", raw)
			continue
		}

		payload := strings.TrimSpace(line.Value)
		if payload == Terminator {
			d.end = EndTerminator
			return Event{}, false
		}

		chunk, err := decodeChunk(payload)
		if err != nil {
			decodeErr := &DecodeError{LineNumber: d.lineNumber, Payload: payload, Err: err}
			d.logger.Warn("skipping malformed stream line", "line", d.lineNumber, "payload", payload, "error", err)
			return Event{Kind: KindDecodeError, Err: decodeErr}, true
		}

		return Event{Kind: KindChunk, Chunk: chunk}, true
	}
}

// All returns a single-use iterator over the remaining events.
func (d *Decoder) All() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, ok := d.Next()
			if !ok || !yield(ev) {
				return
			}
		}
	}
}

// End reports how the stream ended, or EndNone while it is still open.
func (d *Decoder) End() EndReason {
	return d.end
}

// Lines returns how many raw lines have been read so far.
func (d *Decoder) Lines() int {
	return d.lineNumber
}
