package ai

import (
	"context"
	"iter"
)

const (
	// SystemPrompt is prepended to every request as a system message.
	SystemPrompt = "You are an intelligent and helpful voice assistant. Answer clearly and concisely."

	DefaultTemperature float32 = 0.7
	DefaultMaxTokens           = 500

	emptyResponseMessage = "unable to generate a response"
)

// Result is the outcome of a single-shot generation.
type Result struct {
	Text       string
	Model      string
	TokensUsed *int64
}

// Fragment is one element of a streamed answer. A fragment with Err set is
// terminal; its Text carries the error so it can be relayed as content.
type Fragment struct {
	Text string
	Err  error
}

// Provider is the capability surface every vendor adapter exposes.
type Provider interface {
	Name() string
	DefaultModel() string
	// GenerateText returns a non-empty answer or an *Error.
	GenerateText(ctx context.Context, prompt, model string) (*Result, error)
	// GenerateTextStream yields fragments in emission order. It is single use.
	GenerateTextStream(ctx context.Context, prompt, model string) iter.Seq[Fragment]
	// ListModels is best effort and returns an empty slice on failure.
	ListModels(ctx context.Context) []string
}

func errorFragment(err error) Fragment {
	return Fragment{Text: "Error: " + err.Error(), Err: err}
}
