// Package generate provides single-turn text generation backends (Ollama,
// OpenAI-compatible and Anthropic), a guarded wrapper that adds timeouts,
// retries and a circuit breaker, and a token budget for context windows.
package generate

import (
	"context"
	"time"
)

// Default generation settings.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "llama3.1:8b"
	DefaultTimeout     = 90 * time.Second
	DefaultMaxTokens   = 1024
)

// Generator completes one prompt under a system instruction.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	// Model returns the backend model name.
	Model() string
	Close() error
}
