package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompatibleChat(t *testing.T) {
	t.Run("successful completion", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			assert.Equal(t, "/chat/completions", r.URL.Path)

			var req openAIChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "gpt-4o-mini", req.Model)

			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{"content": "hello there"}},
				},
				"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 7},
			})
		}))
		defer srv.Close()

		p := NewOpenAICompatibleProvider("openai", "sk-test", srv.URL, 5*time.Second)
		resp, err := p.Chat(context.Background(), ChatRequest{
			Model:    "gpt-4o-mini",
			Messages: []Message{{Role: "user", Content: "hi"}},
		})
		require.NoError(t, err)

		assert.Equal(t, "Bearer sk-test", gotAuth)
		assert.Equal(t, "hello there", resp.Content)
		assert.Equal(t, int64(12), resp.InputTokens)
		assert.Equal(t, int64(7), resp.OutputTokens)
	})

	t.Run("upstream error surfaces as ProviderError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"message": "rate limited upstream"},
			})
		}))
		defer srv.Close()

		p := NewOpenAICompatibleProvider("deepseek", "key", srv.URL, 5*time.Second)
		_, err := p.Chat(context.Background(), ChatRequest{Model: "deepseek-chat"})

		var provErr *ProviderError
		require.True(t, errors.As(err, &provErr))
		assert.Equal(t, "deepseek", provErr.Provider)
		assert.Equal(t, "rate limited upstream", provErr.Message)
	})

	t.Run("missing key fails before any request", func(t *testing.T) {
		p := NewOpenAICompatibleProvider("openai", "", "http://unreachable.invalid", time.Second)
		_, err := p.Chat(context.Background(), ChatRequest{Model: "gpt-4o"})

		var provErr *ProviderError
		require.True(t, errors.As(err, &provErr))
	})
}

func TestAnthropicChat(t *testing.T) {
	t.Run("system messages move to the system field", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/messages", r.URL.Path)
			assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
			assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

			var req anthropicChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "be terse", req.System)
			require.Len(t, req.Messages, 1)
			assert.Equal(t, "user", req.Messages[0].Role)

			json.NewEncoder(w).Encode(map[string]any{
				"content": []map[string]string{{"type": "text", "text": "ok"}},
				"usage":   map[string]int{"input_tokens": 9, "output_tokens": 3},
			})
		}))
		defer srv.Close()

		p := NewAnthropicProvider("test-key", 5*time.Second)
		p.baseURL = srv.URL

		resp, err := p.Chat(context.Background(), ChatRequest{
			Model: "claude-sonnet",
			Messages: []Message{
				{Role: "system", Content: "be terse"},
				{Role: "user", Content: "hi"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Content)
		assert.Equal(t, int64(9), resp.InputTokens)
	})
}

func TestGoogleChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "answer"}}}},
			},
			"usageMetadata": map[string]int{"promptTokenCount": 5, "candidatesTokenCount": 2},
		})
	}))
	defer srv.Close()

	p := NewGoogleProvider("g-key", 5*time.Second)
	p.baseURL = srv.URL

	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:    "gemini-pro",
		Messages: []Message{{Role: "user", Content: "q"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Content)
	assert.Equal(t, int64(5), resp.InputTokens)
	assert.Equal(t, int64(2), resp.OutputTokens)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()

	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "ignored"},
			{Role: "user", Content: "latest"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Echo: latest", resp.Content)
	assert.Equal(t, int64(20), resp.InputTokens)
	assert.Equal(t, int64(30), resp.OutputTokens)
}

func TestRegistry(t *testing.T) {
	t.Run("unconfigured providers fall back to mock", func(t *testing.T) {
		r := NewRegistry(RegistryConfig{OpenAIAPIKey: "sk-test"})

		assert.Equal(t, "openai", r.Get("openai").Name())
		assert.Equal(t, "mock", r.Get("anthropic").Name())
		assert.Equal(t, "mock", r.Get("unheard-of").Name())
	})
}
