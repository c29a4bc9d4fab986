package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/papercomputeco/tokenprobe/pkg/llm"
)

// Chunk is one decoded completion-chunk event. It is immutable once produced.
type Chunk struct {
	// Delta is the incremental text of the first choice, possibly empty.
	Delta string

	// Usage is the server-reported usage record, nil when the chunk has none.
	Usage *llm.Usage

	// FinishReason of the first choice, if any.
	FinishReason string

	// Raw is the full decoded payload, preserved for inspection.
	Raw map[string]any

	// Data is the payload text exactly as received.
	Data string
}

// HasDelta reports whether the chunk carries text.
func (c *Chunk) HasDelta() bool {
	return c.Delta != ""
}

// decodeChunk parses a single data payload.
func decodeChunk(data string) (*Chunk, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("payload is not an object")
	}

	var typed llm.StreamChunk
	if err := json.Unmarshal([]byte(data), &typed); err != nil {
		return nil, fmt.Errorf("unexpected chunk shape: %w", err)
	}

	// An empty usage object carries no counts and is treated as absent.
	usage := typed.Usage
	if fields, _ := raw["usage"].(map[string]any); len(fields) == 0 {
		usage = nil
	}

	return &Chunk{
		Delta:        typed.DeltaContent(),
		Usage:        usage,
		FinishReason: typed.FinishReason(),
		Raw:          raw,
		Data:         data,
	}, nil
}
