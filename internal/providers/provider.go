package providers

import (
	"context"
	"fmt"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a normalized internal request to a provider.
type ChatRequest struct {
	Model       string    // provider-specific model name
	Messages    []Message // conversation so far
	Temperature *float64  // nil means provider default
	MaxTokens   *int      // nil means provider default
}

// ChatResponse is a normalized provider response.
type ChatResponse struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
}

// Provider is implemented by each concrete LLM backend.
type Provider interface {
	// Name returns the provider identifier (openai, anthropic, ...)
	Name() string

	// Chat sends a chat completion request to the provider
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ProviderError wraps an upstream failure so callers can report which
// provider failed without parsing error strings.
type ProviderError struct {
	Provider string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}
