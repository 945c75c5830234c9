package embed

import (
	"log/slog"
	"strings"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/errors"
)

// Provider names accepted in embeddings.provider.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// NewFromConfig builds the configured embedder wrapped in a cache.
func NewFromConfig(cfg config.EmbeddingsConfig) (*CachedEmbedder, error) {
	var inner Embedder
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOllama:
		inner = NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	case ProviderOpenAI:
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, errors.New(errors.ErrCodeConfigInvalid, "unknown embeddings provider: "+cfg.Provider, nil).
			WithSuggestion("use 'ollama' or 'openai'")
	}
	slog.Debug("embedder ready",
		slog.String("provider", cfg.Provider),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
