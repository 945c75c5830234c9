// Package embed turns query and snippet text into dense vectors.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultDimensions matches nomic-embed-text.
	DefaultDimensions = 768

	// DefaultBatchSize bounds one provider request.
	DefaultBatchSize = 32

	// DefaultTimeout applies when the caller's context has no deadline.
	DefaultTimeout = 60 * time.Second

	// DefaultOllamaHost is the local Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the embedding model used when none is configured.
	DefaultOllamaModel = "nomic-embed-text"
)

// Embedder produces fixed-dimension vectors for text.
type Embedder interface {
	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the vector length.
	Dimensions() int

	// ModelName identifies the model, used as part of cache keys.
	ModelName() string

	Close() error
}

// normalizeVector scales v to unit length in place and returns it.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// batches splits texts into chunks of at most size.
func batches(texts []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[start:end])
	}
	return out
}
