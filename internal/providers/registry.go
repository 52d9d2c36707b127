package providers

import (
	"time"

	"beaver_gateway/internal/utils"
)

// Registry maps provider names to configured backends. Names with no
// configured backend resolve to the mock provider, so a request never fails
// just because a catalog entry points at an unconfigured upstream.
type Registry struct {
	providers map[string]Provider
	fallback  Provider
	logger    *utils.Logger
}

// RegistryConfig carries the per-provider API keys.
type RegistryConfig struct {
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	GoogleAPIKey     string
	DeepSeekAPIKey   string
	PerplexityAPIKey string
	XAIAPIKey        string

	RequestTimeout time.Duration
}

// NewRegistry builds a registry from the configured API keys. Providers with
// an empty key are not registered and fall through to the mock.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		fallback:  NewMockProvider(),
		logger:    utils.NewLogger("providers"),
	}

	register := func(name, key string, p Provider) {
		if key == "" {
			r.logger.Info("provider not configured, requests will use mock", "provider", name)
			return
		}
		r.providers[name] = p
	}

	register("openai", cfg.OpenAIAPIKey, NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.RequestTimeout))
	register("anthropic", cfg.AnthropicAPIKey, NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.RequestTimeout))
	register("google", cfg.GoogleAPIKey, NewGoogleProvider(cfg.GoogleAPIKey, cfg.RequestTimeout))
	register("deepseek", cfg.DeepSeekAPIKey, NewDeepSeekProvider(cfg.DeepSeekAPIKey, cfg.RequestTimeout))
	register("perplexity", cfg.PerplexityAPIKey, NewPerplexityProvider(cfg.PerplexityAPIKey, cfg.RequestTimeout))
	register("xai", cfg.XAIAPIKey, NewXAIProvider(cfg.XAIAPIKey, cfg.RequestTimeout))

	return r
}

// Get resolves a provider name to a backend, falling back to the mock.
func (r *Registry) Get(name string) Provider {
	if p, ok := r.providers[name]; ok {
		return p
	}
	return r.fallback
}

// Register adds or replaces a provider. Used by tests to inject fakes.
func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}
