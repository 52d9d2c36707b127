package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAICompatibleProvider talks to any backend exposing the OpenAI chat
// completions API. OpenAI itself, DeepSeek, Perplexity and xAI all share the
// wire format and differ only in base URL and key.
type OpenAICompatibleProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenAIProvider creates a provider for the OpenAI API.
func NewOpenAIProvider(apiKey string, timeout time.Duration) *OpenAICompatibleProvider {
	return NewOpenAICompatibleProvider("openai", apiKey, openAIDefaultBaseURL, timeout)
}

// NewDeepSeekProvider creates a provider for the DeepSeek API.
func NewDeepSeekProvider(apiKey string, timeout time.Duration) *OpenAICompatibleProvider {
	return NewOpenAICompatibleProvider("deepseek", apiKey, "https://api.deepseek.com/v1", timeout)
}

// NewPerplexityProvider creates a provider for the Perplexity API.
func NewPerplexityProvider(apiKey string, timeout time.Duration) *OpenAICompatibleProvider {
	return NewOpenAICompatibleProvider("perplexity", apiKey, "https://api.perplexity.ai", timeout)
}

// NewXAIProvider creates a provider for the xAI API.
func NewXAIProvider(apiKey string, timeout time.Duration) *OpenAICompatibleProvider {
	return NewOpenAICompatibleProvider("xai", apiKey, "https://api.x.ai/v1", timeout)
}

// NewOpenAICompatibleProvider creates a provider against an arbitrary
// OpenAI-compatible endpoint.
func NewOpenAICompatibleProvider(name, apiKey, baseURL string, timeout time.Duration) *OpenAICompatibleProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAICompatibleProvider{
		name:    name,
		apiKey:  apiKey,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name returns the provider identifier
func (p *OpenAICompatibleProvider) Name() string {
	return p.name
}

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat sends a chat completion request
func (p *OpenAICompatibleProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.apiKey == "" {
		return nil, &ProviderError{Provider: p.name, Message: "no API key configured"}
	}

	body, err := json.Marshal(openAIChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &ProviderError{Provider: p.name, Message: fmt.Sprintf("invalid response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, &ProviderError{Provider: p.name, Message: msg}
	}

	if len(parsed.Choices) == 0 {
		return nil, &ProviderError{Provider: p.name, Message: "response contained no choices"}
	}

	return &ChatResponse{
		Content:      parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}
