// Package tokencount reproduces chat-completion token accounting locally.
//
// A message list costs a fixed framing overhead per message, the encoded
// length of every field value, one extra token per "name" field, and a fixed
// reply-priming overhead. The overhead constants depend on the model family,
// resolved once through an ordered lookup table (see Resolve).
package tokencount

import (
	"log/slog"

	"github.com/papercomputeco/tokenprobe/pkg/llm"
	"github.com/papercomputeco/tokenprobe/pkg/logger"
)

// Counter counts tokens for a fixed model. It is deterministic and safe for
// concurrent use once constructed.
type Counter struct {
	profile  Profile
	encoder  Encoder
	encoding string
}

// Option configures a Counter.
type Option func(*options)

type options struct {
	encoder Encoder
	logger  *slog.Logger
}

// WithEncoder overrides the tiktoken encoder, e.g. with a fixed reference
// encoding in tests.
func WithEncoder(enc Encoder) Option {
	return func(o *options) {
		o.encoder = enc
	}
}

// WithLogger sets the logger used for model resolution warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New resolves model to a counting profile and loads its encoder.
// It returns ErrUnsupportedModel when the model matches no known family.
func New(model string, opts ...Option) (*Counter, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	log := logger.OrNop(o.logger)

	profile, err := Resolve(model)
	if err != nil {
		return nil, err
	}

	if !profile.Pinned {
		log.Warn("model may update over time, counting tokens as its pinned snapshot",
			"model", model,
			"assumed", profile.Canonical,
		)
	}

	c := &Counter{profile: profile, encoder: o.encoder, encoding: "custom"}
	if c.encoder != nil {
		return c, nil
	}

	if enc, ok := encoderForModel(profile.Canonical); ok {
		c.encoder = enc
		c.encoding = "model:" + profile.Canonical
		return c, nil
	}

	log.Warn("model not found by encoder, using fallback encoding",
		"model", profile.Canonical,
		"encoding", FallbackEncoding,
	)

	enc, err := EncoderByName(FallbackEncoding)
	if err != nil {
		return nil, err
	}
	c.encoder = enc
	c.encoding = FallbackEncoding

	return c, nil
}

// Profile returns the resolved counting profile.
func (c *Counter) Profile() Profile {
	return c.profile
}

// Encoding describes which encoder backs the counter.
func (c *Counter) Encoding() string {
	return c.encoding
}

// CountText returns the encoded token length of text without any framing.
func (c *Counter) CountText(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoder.Encode(text))
}

// CountMessages returns the framed token count of a chat message list,
// including the reply-priming overhead.
func (c *Counter) CountMessages(messages []llm.Message) (int, error) {
	total := 0
	for _, msg := range messages {
		total += c.profile.TokensPerMessage
		for _, field := range msg.Fields() {
			total += c.CountText(field.Value)
			if field.Key == "name" {
				total += c.profile.TokensPerName
			}
		}
	}
	total += replyPrimingTokens

	return total, nil
}
