package providers

import "context"

// MockProvider echoes the last user message. It serves models whose provider
// has no configured backend, so the pipeline can run end to end in
// development without any upstream credentials.
type MockProvider struct{}

// NewMockProvider creates a mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Name returns the provider identifier
func (p *MockProvider) Name() string {
	return "mock"
}

// Chat echoes the last user message with fixed token counts.
func (p *MockProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	var last string
	for _, m := range req.Messages {
		if m.Role == "user" {
			last = m.Content
		}
	}

	return &ChatResponse{
		Content:      "Echo: " + last,
		InputTokens:  20,
		OutputTokens: 30,
	}, nil
}
