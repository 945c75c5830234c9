package generate

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/coderag/internal/config"
)

// Provider names accepted in generation.provider.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewFromConfig builds the configured backend.
func NewFromConfig(cfg config.GenerationConfig) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOllama:
		return NewOllamaGenerator(OllamaConfig{
			Host:        cfg.OllamaHost,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			NumCtx:      cfg.NumCtx,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}), nil
	case ProviderOpenAI:
		return NewOpenAIGenerator(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case ProviderAnthropic:
		return NewAnthropicGenerator(AnthropicConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

// NewGuardedFromConfig builds the configured backend behind a Guarded wrapper.
func NewGuardedFromConfig(cfg config.GenerationConfig) (*Guarded, error) {
	gen, err := NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewGuarded(gen, cfg.Timeout, cfg.MaxRetries), nil
}
