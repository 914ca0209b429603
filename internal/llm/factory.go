package llm

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
)

// Default models per provider.
var defaultModels = map[string]string{
	"openai":    "gpt-3.5-turbo",
	"anthropic": "claude-3-haiku-20240307",
	"gemini":    "gemini-pro",
	"ollama":    "llama3",
	"bedrock":   "anthropic.claude-3-haiku-20240307-v1:0",
}

// NewSynthesizer builds the provider named by cfg.Provider. Providers that
// need an API key return ErrNotConfigured when it is missing.
func NewSynthesizer(ctx context.Context, cfg *config.SynthesisConfig) (Synthesizer, error) {
	model := cfg.Model
	if model == "" {
		model = defaultModels[cfg.Provider]
	}

	switch cfg.Provider {
	case "openai", "anthropic", "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrNotConfigured)
		}
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAISynthesizer(cfg.APIKey, model, cfg.BaseURL), nil
	case "anthropic":
		return NewAnthropicSynthesizer(cfg.APIKey, model, cfg.BaseURL), nil
	case "gemini":
		return NewGeminiSynthesizer(cfg.APIKey, model, cfg.BaseURL), nil
	case "ollama":
		return NewOllamaSynthesizer(model, cfg.BaseURL)
	case "bedrock":
		return NewBedrockSynthesizer(ctx, cfg.Region, model)
	default:
		return nil, fmt.Errorf("unknown synthesis provider %q", cfg.Provider)
	}
}
