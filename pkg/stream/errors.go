package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMessages is returned when a reconciler is created without any
	// request messages to count prompt tokens from.
	ErrNoMessages = errors.New("request has no messages")

	// ErrNoCounter is returned when a reconciler is created without a token counter.
	ErrNoCounter = errors.New("no token counter configured")

	// ErrInvalidState is returned when a reconciler is driven out of order.
	// A reconciler is single-use.
	ErrInvalidState = errors.New("invalid reconciler state")
)

// TransportError is a network, connection or HTTP status failure of the
// underlying stream. It is terminal for the stream.
type TransportError struct {
	// StatusCode is the HTTP status when the failure is a non-2xx response,
	// 0 for connection or read failures.
	StatusCode int

	// Body is a snippet of the response body for status failures.
	Body string

	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("transport: status %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport: status %d", e.StatusCode)
	case e.Err != nil:
		return "transport: " + e.Err.Error()
	default:
		return "transport: unknown failure"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// asTransportError wraps err as a *TransportError unless it already is one.
func asTransportError(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Err: err}
}

// DecodeError reports a single stream line whose payload could not be parsed.
// It is never fatal; decoding continues with the next line.
type DecodeError struct {
	// LineNumber is the 1-based line number within the stream.
	LineNumber int

	// Payload is the offending text after the "data:" prefix.
	Payload string

	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding stream line %d %q: %v", e.LineNumber, e.Payload, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
