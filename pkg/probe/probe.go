// Package probe runs one streaming chat request through the gateway and
// reconciles the local token counts against the reported usage.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/papercomputeco/tokenprobe/pkg/config"
	"github.com/papercomputeco/tokenprobe/pkg/gateway"
	"github.com/papercomputeco/tokenprobe/pkg/llm"
	"github.com/papercomputeco/tokenprobe/pkg/logger"
	"github.com/papercomputeco/tokenprobe/pkg/stream"
	"github.com/papercomputeco/tokenprobe/pkg/tokencount"
)

// ErrIncomplete is returned by Outcome.Err when the stream ended without the
// terminator or clean exhaustion.
var ErrIncomplete = errors.New("stream ended before completion")

// ErrNoClient is returned by New when no gateway client is given.
var ErrNoClient = errors.New("no gateway client configured")

// Probe ties a gateway client to a token counter.
type Probe struct {
	client  *gateway.Client
	counter *tokencount.Counter
	logger  *slog.Logger
}

// Option configures a Probe.
type Option func(*Probe)

// WithLogger sets the logger handed to the decoder and reconciler.
func WithLogger(l *slog.Logger) Option {
	return func(p *Probe) {
		p.logger = logger.OrNop(l)
	}
}

// New creates a Probe. It fails with ErrNoClient or stream.ErrNoCounter when
// either collaborator is missing.
func New(client *gateway.Client, counter *tokencount.Counter, opts ...Option) (*Probe, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	if counter == nil {
		return nil, stream.ErrNoCounter
	}

	p := &Probe{
		client:  client,
		counter: counter,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Request is one probe invocation.
type Request struct {
	Messages []llm.Message
	Params   config.RequestConfig

	// Capture receives every raw stream line when non-nil.
	Capture io.Writer

	// Observer is notified of every text fragment as it arrives.
	Observer stream.Observer
}

// Outcome is the reconciled result together with request metadata.
type Outcome struct {
	Result    *stream.Result
	RequestID string
	Status    int

	// CaptureErr is the first failure writing to Request.Capture. The stream
	// itself is unaffected by it.
	CaptureErr error
}

// Err returns nil for a complete stream, otherwise an error wrapping
// ErrIncomplete and the transport failure.
func (o *Outcome) Err() error {
	if o == nil || o.Result == nil || o.Result.Complete() {
		return nil
	}
	if o.Result.TransportErr != nil {
		return fmt.Errorf("%w: %w", ErrIncomplete, o.Result.TransportErr)
	}
	return ErrIncomplete
}

// Messages builds the request message list: the system prompt, when set,
// followed by the user prompt.
func Messages(system, prompt string) []llm.Message {
	msgs := make([]llm.Message, 0, 2)
	if system != "" {
		msgs = append(msgs, llm.NewTextMessage(llm.RoleSystem, system))
	}
	return append(msgs, llm.NewTextMessage(llm.RoleUser, prompt))
}

// ChatRequest builds the streaming request body for messages with the
// generation parameters of rc.
func ChatRequest(messages []llm.Message, rc config.RequestConfig) *llm.ChatRequest {
	req := llm.NewStreamingRequest(messages)
	req.MaxTokens = &rc.MaxTokens
	req.Temperature = &rc.Temperature
	req.TopP = &rc.TopP
	req.FrequencyPenalty = &rc.FrequencyPenalty
	req.PresencePenalty = &rc.PresencePenalty
	return req
}

// Run counts the prompt, sends the request and reconciles the stream.
//
// A transport failure, whether on connect or mid-stream, still yields an
// Outcome holding what arrived; check Outcome.Err. Only precondition failures
// are returned as errors.
func (p *Probe) Run(ctx context.Context, req Request) (*Outcome, error) {
	rec, err := stream.NewReconciler(req.Messages, p.counter,
		stream.WithObserver(req.Observer),
		stream.WithLogger(p.logger),
	)
	if err != nil {
		return nil, err
	}

	if err := rec.Begin(); err != nil {
		return nil, err
	}

	s, err := p.client.Stream(ctx, ChatRequest(req.Messages, req.Params), req.Capture)
	if err != nil {
		var te *stream.TransportError
		if !errors.As(err, &te) {
			return nil, err
		}

		p.logger.Error("could not open stream", "error", err)
		res, abortErr := rec.Abort(te)
		if abortErr != nil {
			return nil, abortErr
		}
		return &Outcome{Result: res, Status: te.StatusCode}, nil
	}
	defer s.Close()

	res, err := rec.Run(stream.NewDecoder(s, p.logger))
	if err != nil {
		return nil, err
	}

	if captureErr := s.CaptureErr(); captureErr != nil {
		p.logger.Warn("raw stream capture incomplete", "error", captureErr)
	}

	return &Outcome{
		Result:     res,
		RequestID:  s.RequestID,
		Status:     s.Status,
		CaptureErr: s.CaptureErr(),
	}, nil
}
