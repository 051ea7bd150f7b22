package llm

import (
	"context"
	"fmt"
)

// NoopProvider is used when no LLM provider is configured, so callers can
// depend on llm.ChatProvider unconditionally instead of a nullable pointer.
type NoopProvider struct{}

// NewNoopProvider creates a new NoopProvider.
func NewNoopProvider() *NoopProvider {
	return &NoopProvider{}
}

func (p *NoopProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("llm provider not configured")
}

func (p *NoopProvider) IsConfigured() bool {
	return false
}

func (p *NoopProvider) GenerateChat(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	return nil, fmt.Errorf("llm provider not configured")
}
