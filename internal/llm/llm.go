// Package llm defines the completion-provider boundary for claimdesk.
// Implementations normalize every provider response down to plain text
// before it leaves the package, so nothing downstream branches on
// provider response shapes.
package llm

import (
	"context"
	"fmt"
)

// Params controls sampling for a single completion call.
type Params struct {
	// Temperature in [0,1]. Lower is more deterministic.
	Temperature float32

	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int
}

// Client is the interface for any completion/embedding backend.
type Client interface {
	// Complete sends a prompt and returns the generated text.
	Complete(ctx context.Context, prompt string, p Params) (string, error)

	// Embed returns one embedding vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ProviderError wraps any failure talking to the completion provider:
// network, auth, quota, or a malformed provider payload. Callers never
// retry inside this layer.
type ProviderError struct {
	Op  string // "complete" or "embed"
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
