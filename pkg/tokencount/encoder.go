package tokencount

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// FallbackEncoding is the newest encoding scheme, used when the encoder does
// not recognize a model.
const FallbackEncoding = "o200k_base"

// Encoder turns text into tokens.
type Encoder interface {
	Encode(text string) []int
}

var loaderOnce sync.Once

// useOfflineLoader makes tiktoken read its BPE ranks from embedded files
// instead of downloading them, so counts never depend on the network.
func useOfflineLoader() {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
}

type tiktokenEncoder struct {
	tk *tiktoken.Tiktoken
}

func (e tiktokenEncoder) Encode(text string) []int {
	return e.tk.Encode(text, nil, nil)
}

// encoderForModel returns the tiktoken encoder registered for model. ok is
// false when tiktoken has no mapping for it.
func encoderForModel(model string) (enc Encoder, ok bool) {
	useOfflineLoader()

	tk, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, false
	}
	return tiktokenEncoder{tk: tk}, true
}

// EncoderByName returns the tiktoken encoder for a named encoding such as
// "cl100k_base" or "o200k_base".
func EncoderByName(name string) (Encoder, error) {
	useOfflineLoader()

	tk, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %s: %w", name, err)
	}
	return tiktokenEncoder{tk: tk}, nil
}
