package embed

import (
	"context"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Aman-CERP/coderag/internal/errors"
)

// OpenAIConfig configures an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIEmbedder creates an embedder. BaseURL allows local
// OpenAI-compatible servers.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "OPENAI_API_KEY is not set", nil).
			WithSuggestion("export OPENAI_API_KEY or set embeddings.base_url to a local server")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// Embed returns the normalized vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in batches, preserving input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, e.cfg.BatchSize) {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      batch,
			Model:      openai.EmbeddingModel(e.cfg.Model),
			Dimensions: e.cfg.Dimensions,
		})
		if err != nil {
			return nil, errors.New(errors.ErrCodeEmbedderUnavailable, "openai embedding request failed", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, errors.New(errors.ErrCodeEmbedderUnavailable,
				fmt.Sprintf("expected %d embeddings, got %d", len(batch), len(resp.Data)), nil)
		}
		data := resp.Data
		sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		for _, d := range data {
			vec := make([]float32, len(d.Embedding))
			copy(vec, d.Embedding)
			out = append(out, normalizeVector(vec))
		}
	}
	return out, nil
}

// Dimensions returns the requested vector length.
func (e *OpenAIEmbedder) Dimensions() int { return e.cfg.Dimensions }

// ModelName returns the configured model.
func (e *OpenAIEmbedder) ModelName() string { return e.cfg.Model }

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error { return nil }
