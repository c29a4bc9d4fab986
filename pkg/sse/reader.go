package sse

import (
	"bufio"
	"io"
)

const (
	initialBufferSize = 64 * 1024
	maxLineSize       = 1024 * 1024
)

// TeeReader reads SSE lines from a source io.Reader while simultaneously
// writing all raw bytes verbatim to a destination io.Writer.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────────┐   ┌───────────────────────┐
// │ TeeReader.NextLine() │──▶│ destination io.Writer │
// └──────────────────────┘   └───────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │   raw line text  │
// └──────────────────┘
//
// The destination receives an exact copy of the stream (useful for raw
// captures), while the caller inspects lines one at a time.
//
// A failed write to the destination never interrupts reading: the first
// write error is kept for CaptureErr and the rest of the copy is dropped.
type TeeReader struct {
	scanner    *bufio.Scanner
	dest       io.Writer
	captureErr error
}

// NewTeeReader returns a TeeReader that reads lines from src and writes all
// raw bytes through to dest. A nil dest discards the copy.
func NewTeeReader(src io.Reader, dest io.Writer) *TeeReader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, initialBufferSize), maxLineSize)

	if dest == nil {
		dest = io.Discard
	}

	return &TeeReader{
		scanner: scanner,
		dest:    dest,
	}
}

// NextLine returns the next raw line from the source, without its trailing
// newline. It blocks until a full line is available.
// NextLine returns io.EOF when the source is exhausted; any other error is a
// read failure of the underlying source.
func (r *TeeReader) NextLine() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}

	raw := r.scanner.Text()

	// bufio.Scanner strips the newline from the Scan() so we reinsert it here.
	if _, err := io.WriteString(r.dest, raw+"\n"); err != nil {
		r.captureErr = err
		r.dest = io.Discard
	}

	return raw, nil
}

// CaptureErr returns the first error writing to the destination, if any.
func (r *TeeReader) CaptureErr() error {
	return r.captureErr
}
