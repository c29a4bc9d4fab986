package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/papercomputeco/tokenprobe/pkg/llm"
	"github.com/papercomputeco/tokenprobe/pkg/logger"
	"github.com/papercomputeco/tokenprobe/pkg/sse"
	"github.com/papercomputeco/tokenprobe/pkg/stream"
	"github.com/papercomputeco/tokenprobe/pkg/utils"
)

const (
	// maxErrorBody bounds how much of a failed response body is kept.
	maxErrorBody = 2048

	maxLoggedBody = 4096
)

// Client sends streaming chat completion requests to a gateway.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.OrNop(l)
	}
}

// NewClient validates cfg and returns a Client for it.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			// Completions can be slow to finish streaming
			Timeout: DefaultTimeout,
		}
	}

	c := &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// Stream is an open streaming response.
type Stream struct {
	// Status is the HTTP status code of the response.
	Status int

	// RequestID is the Request-ID header value sent with the request.
	RequestID string

	body   io.ReadCloser
	reader *sse.TeeReader
}

// NextLine returns the next raw line of the response body. It makes Stream a
// stream.LineSource.
func (s *Stream) NextLine() (string, error) {
	return s.reader.NextLine()
}

// CaptureErr returns the first error copying the stream to the capture
// writer. Capture failures never interrupt the stream.
func (s *Stream) CaptureErr() error {
	return s.reader.CaptureErr()
}

// Close closes the response body.
func (s *Stream) Close() error {
	return s.body.Close()
}

// Stream sends req and returns the open response stream. Every raw line read
// from the stream is also copied to capture when it is non-nil.
//
// Connection failures and non-2xx responses are returned as
// *stream.TransportError. The caller must Close the returned Stream.
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest, capture io.Writer) (*Stream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	endpoint := c.config.Endpoint()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating gateway request: %w", err)
	}
	requestID := c.config.setRequestHeaders(httpReq)

	c.logger.Debug("sending streaming request",
		"endpoint", endpoint,
		"headers", RedactHeaders(httpReq.Header),
		"body", utils.Truncate(string(body), maxLoggedBody),
	)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("gateway request failed", "error", err, "request_id", requestID)
		return nil, &stream.TransportError{Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		defer httpResp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))

		c.logger.Error("gateway returned error",
			"status", httpResp.StatusCode,
			"body", string(snippet),
			"request_id", requestID,
		)
		return nil, &stream.TransportError{
			StatusCode: httpResp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	c.logger.Debug("streaming response opened",
		"status", httpResp.StatusCode,
		"content_type", httpResp.Header.Get("Content-Type"),
		"request_id", requestID,
	)

	return &Stream{
		Status:    httpResp.StatusCode,
		RequestID: requestID,
		body:      httpResp.Body,
		reader:    sse.NewTeeReader(httpResp.Body, capture),
	}, nil
}
