package llm

// StreamChunk is a single "chat.completion.chunk" payload as delivered in the
// data field of a streaming response.
type StreamChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`

	Choices []StreamChoice `json:"choices"`

	// Usage is only present on the final chunk when stream_options.include_usage
	// was requested.
	Usage *Usage `json:"usage,omitempty"`
}

// StreamChoice is one completion choice within a chunk.
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// StreamDelta carries the incremental message content.
type StreamDelta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content"`
}

// DeltaContent returns the content of the first choice's delta, or the empty
// string when the chunk carries none.
func (c *StreamChunk) DeltaContent() string {
	if len(c.Choices) == 0 || c.Choices[0].Delta.Content == nil {
		return ""
	}
	return *c.Choices[0].Delta.Content
}

// FinishReason returns the first choice's finish reason, if any.
func (c *StreamChunk) FinishReason() string {
	if len(c.Choices) == 0 || c.Choices[0].FinishReason == nil {
		return ""
	}
	return *c.Choices[0].FinishReason
}
