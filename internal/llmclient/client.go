// Package llmclient is the opaque LLM client boundary the Invoker (D) and
// the decomposer's LLM strategy (H) talk to. Per spec.md §6, the LLM
// transport itself is an external collaborator: the engine depends only
// on this narrow interface and must keep working with it unset (the
// Placeholder and MCP invokers, and the rule-based decomposer strategy,
// never need one). The two concrete clients below are the domain-stack
// wiring for anthropic-sdk-go and openai-go — swapping between them, or
// supplying a test double, never touches the engine's core packages.
package llmclient

import "context"

// Options mirrors spec.md §6's "(prompt, options)" callable contract.
type Options struct {
	MaxTokens   int
	Temperature float64
	Model       string
}

// Client is the callable spec.md §6 describes: a prompt in, a completed
// response out, with an optional token stream for progress reporting.
type Client interface {
	// Complete returns the full response text for prompt.
	Complete(ctx context.Context, prompt string, opts Options) (string, error)

	// Stream returns a channel of incremental text chunks. Callers that
	// don't care about incremental progress can drain it and concatenate.
	// The channel is closed when the response completes or ctx is done.
	Stream(ctx context.Context, prompt string, opts Options) (<-chan string, error)
}
