// Package llm provides interfaces for language model providers.
package llm

import (
	"context"
)

// Provider is an interface for LLM providers
type Provider interface {
	// Complete generates a completion for the given prompt
	Complete(ctx context.Context, prompt string) (string, error)

	// IsConfigured returns true if the provider is properly configured
	IsConfigured() bool
}

// CompletionRequest carries the fields LLMWorker needs beyond a bare prompt:
// an independent system prompt, a per-call temperature (retry escalation),
// and a max-token ceiling. Mirrors vertex.Client.GenerateRequest.
type CompletionRequest struct {
	Model           string
	SystemPrompt    string
	UserPrompt      string
	Temperature     float64
	MaxOutputTokens int
}

// CompletionResult is the provider's response to a CompletionRequest.
type CompletionResult struct {
	Content      string
	FinishReason string
}

// ChatProvider extends Provider with the full request shape LLMWorker
// dispatches (system prompt, temperature, max tokens, finish reason).
type ChatProvider interface {
	Provider

	// GenerateChat performs one completion call with explicit parameters.
	GenerateChat(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}
