package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/tokenprobe/pkg/llm"
	"github.com/papercomputeco/tokenprobe/pkg/logger"
)

// TokenCounter counts the framed tokens of a chat message list. It must be
// deterministic.
type TokenCounter interface {
	CountMessages(messages []llm.Message) (int, error)
}

// Observer is notified of every text fragment as it arrives, e.g. for live
// echo. It runs synchronously on the consuming goroutine.
type Observer func(Fragment)

// State is the lifecycle state of a Reconciler.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Reconciler consumes decoded events, accumulates the streamed reply and
// produces a Result comparing local token counts with server usage.
//
// Lifecycle: Idle → Streaming (Begin) → Finalizing → Done (Finish). There is
// no way back; a Reconciler is single-use and not safe for concurrent use.
type Reconciler struct {
	messages []llm.Message
	counter  TokenCounter
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	state  State
	start  time.Time
	text   strings.Builder
	result Result
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithObserver registers a per-fragment notification callback.
func WithObserver(o Observer) ReconcilerOption {
	return func(r *Reconciler) {
		r.observer = o
	}
}

// WithLogger sets the logger. The default discards logs.
func WithLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger.OrNop(l)
	}
}

// WithClock overrides time.Now, for deterministic timing in tests.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.now = now
	}
}

// NewReconciler creates a Reconciler for a request with the given messages.
// It fails with ErrNoMessages or ErrNoCounter when its preconditions are not met.
func NewReconciler(messages []llm.Message, counter TokenCounter, opts ...ReconcilerOption) (*Reconciler, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	if counter == nil {
		return nil, ErrNoCounter
	}

	r := &Reconciler{
		messages: messages,
		counter:  counter,
		logger:   logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// State returns the current lifecycle state.
func (r *Reconciler) State() State {
	return r.state
}

// PromptTokens returns the locally computed prompt token count once Begin
// has succeeded.
func (r *Reconciler) PromptTokens() int {
	return r.result.PromptTokens
}

// Begin counts the prompt tokens of the request messages, marks the request
// start time and moves the reconciler to Streaming. Call it right before the
// request is sent; it does not depend on the stream.
func (r *Reconciler) Begin() error {
	if r.state != StateIdle {
		return fmt.Errorf("%w: begin while %s", ErrInvalidState, r.state)
	}

	prompt, err := r.counter.CountMessages(r.messages)
	if err != nil {
		return fmt.Errorf("counting prompt tokens: %w", err)
	}

	r.result.PromptTokens = prompt
	r.start = r.now()
	r.state = StateStreaming

	r.logger.Info("prompt token count", "tokens", prompt, "messages", len(r.messages))

	return nil
}

// Consume applies one decoded event.
func (r *Reconciler) Consume(ev Event) error {
	if r.state != StateStreaming {
		return fmt.Errorf("%w: consume while %s", ErrInvalidState, r.state)
	}

	switch ev.Kind {
	case KindChunk:
		r.consumeChunk(ev.Chunk)

	case KindDecodeError:
		var de *DecodeError
		if errors.As(ev.Err, &de) {
			r.result.DecodeErrors = append(r.result.DecodeErrors, de)
		}

	case KindTransportError:
		r.result.TransportErr = ev.Err
	}

	return nil
}

func (r *Reconciler) consumeChunk(chunk *Chunk) {
	if chunk == nil {
		return
	}

	r.result.Payloads = append(r.result.Payloads, chunk.Raw)

	if chunk.Usage != nil {
		r.result.UsageChunks++
		if r.result.ServerUsage != nil {
			r.logger.Warn("multiple usage records in stream, keeping the last",
				"previous_total", r.result.ServerUsage.TotalTokens,
				"total", chunk.Usage.TotalTokens,
			)
		}
		usage := *chunk.Usage
		r.result.ServerUsage = &usage
	}

	if chunk.FinishReason != "" {
		r.result.FinishReason = chunk.FinishReason
	}

	if !chunk.HasDelta() {
		return
	}

	fragment := Fragment{
		Index:  len(r.result.Fragments),
		Text:   chunk.Delta,
		Offset: r.now().Sub(r.start),
	}
	r.text.WriteString(chunk.Delta)
	r.result.Fragments = append(r.result.Fragments, fragment)

	if r.observer != nil {
		r.observer(fragment)
	}
}

// Finish counts the completion tokens over the accumulated text, treated as a
// single assistant message, and produces the Result. end records why the
// stream stopped.
func (r *Reconciler) Finish(end EndReason) (*Result, error) {
	if r.state != StateStreaming {
		return nil, fmt.Errorf("%w: finish while %s", ErrInvalidState, r.state)
	}
	r.state = StateFinalizing

	if end == EndNone {
		end = EndExhausted
	}
	if end == EndTransportFailure && r.result.TransportErr == nil {
		r.result.TransportErr = &TransportError{}
	}

	r.result.End = end
	r.result.Elapsed = r.now().Sub(r.start)
	r.result.Text = r.text.String()

	reply := []llm.Message{llm.NewTextMessage(llm.RoleAssistant, r.result.Text)}
	completion, err := r.counter.CountMessages(reply)
	if err != nil {
		r.result.CountErr = fmt.Errorf("counting completion tokens: %w", err)
		r.logger.Error("could not count completion tokens", "error", err)
	} else {
		r.result.CompletionTokens = completion
		r.result.TotalTokens = r.result.PromptTokens + completion
	}

	r.state = StateDone

	r.logger.Debug("stream reconciled",
		"end", end.String(),
		"fragments", len(r.result.Fragments),
		"chunks", len(r.result.Payloads),
		"decode_errors", len(r.result.DecodeErrors),
		"usage_chunks", r.result.UsageChunks,
		"elapsed", r.result.Elapsed,
	)

	result := r.result
	return &result, nil
}

// Abort finishes the stream with a transport failure that happened before or
// while streaming, keeping whatever was accumulated.
func (r *Reconciler) Abort(err error) (*Result, error) {
	if r.state != StateStreaming {
		return nil, fmt.Errorf("%w: abort while %s", ErrInvalidState, r.state)
	}

	r.result.TransportErr = asTransportError(err)
	return r.Finish(EndTransportFailure)
}

// Run begins the reconciler when still idle, drains the decoder and finishes.
// Decode anomalies and transport failures end up in the Result; only
// precondition failures are returned as errors.
func (r *Reconciler) Run(d *Decoder) (*Result, error) {
	if r.state == StateIdle {
		if err := r.Begin(); err != nil {
			return nil, err
		}
	}

	for ev := range d.All() {
		if err := r.Consume(ev); err != nil {
			return nil, err
		}
	}

	return r.Finish(d.End())
}
