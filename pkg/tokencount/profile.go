package tokencount

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedModel is returned when a model identifier matches no known
// counting family. No count can be produced for such a model.
var ErrUnsupportedModel = errors.New("token counting not implemented for model")

// replyPrimingTokens models the special token sequence every reply is primed with.
const replyPrimingTokens = 3

// Profile describes how chat message framing is counted for a model family.
type Profile struct {
	// Model is the identifier that was asked for.
	Model string

	// Canonical is the pinned model snapshot whose framing and encoding are used.
	Canonical string

	// TokensPerMessage is the fixed framing overhead added for every message.
	TokensPerMessage int

	// TokensPerName is added on top when a message carries a "name" field.
	TokensPerName int

	// Pinned is false when Model was resolved through a family pattern, meaning
	// the provider may update the model behind the name over time.
	Pinned bool
}

// pinnedSnapshots are the model snapshots whose framing is known exactly.
var pinnedSnapshots = map[string]struct{}{
	"gpt-3.5-turbo-0125":     {},
	"gpt-4-0314":             {},
	"gpt-4-32k-0314":         {},
	"gpt-4-0613":             {},
	"gpt-4-32k-0613":         {},
	"gpt-4o-mini-2024-07-18": {},
	"gpt-4o-2024-08-06":      {},
}

type family struct {
	substring string
	canonical string
}

// families is evaluated in order; more specific names must come first
// ("gpt-4o-mini" before "gpt-4o" before "gpt-4").
var families = []family{
	{substring: "gpt-3.5-turbo", canonical: "gpt-3.5-turbo-0125"},
	{substring: "gpt-35-turbo", canonical: "gpt-3.5-turbo-0125"},
	{substring: "gpt-4o-mini", canonical: "gpt-4o-mini-2024-07-18"},
	{substring: "gpt-4o", canonical: "gpt-4o-2024-08-06"},
	{substring: "gpt-4", canonical: "gpt-4-0613"},
}

// Resolve maps a model identifier to its counting profile in a single pass
// over the lookup table.
func Resolve(model string) (Profile, error) {
	name := strings.ToLower(strings.TrimSpace(model))

	if _, ok := pinnedSnapshots[name]; ok {
		return newProfile(model, name, true), nil
	}

	for _, f := range families {
		if strings.Contains(name, f.substring) {
			return newProfile(model, f.canonical, false), nil
		}
	}

	return Profile{}, fmt.Errorf("%w %q", ErrUnsupportedModel, model)
}

func newProfile(model, canonical string, pinned bool) Profile {
	return Profile{
		Model:            model,
		Canonical:        canonical,
		TokensPerMessage: 3,
		TokensPerName:    1,
		Pinned:           pinned,
	}
}
