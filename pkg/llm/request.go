package llm

// ChatRequest is the chat completion request body sent to the gateway.
// The deployment (model) is part of the URL, not the body.
type ChatRequest struct {
	// Conversation messages
	Messages []Message `json:"messages"`

	// Generation parameters
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`

	// Whether to stream the response
	Stream bool `json:"stream"`

	// StreamOptions asks the server to append a usage chunk to the stream.
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
}

// StreamOptions controls optional streaming behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// NewStreamingRequest builds a streaming request for messages that asks the
// server to report usage on the final chunk.
func NewStreamingRequest(messages []Message) *ChatRequest {
	return &ChatRequest{
		Messages:      messages,
		Stream:        true,
		StreamOptions: &StreamOptions{IncludeUsage: true},
	}
}
