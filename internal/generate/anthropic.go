package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Aman-CERP/coderag/internal/errors"
)

// AnthropicConfig configures an AnthropicGenerator.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// AnthropicGenerator calls the Messages API.
type AnthropicGenerator struct {
	client *anthropic.Client
	cfg    AnthropicConfig
}

var _ Generator = (*AnthropicGenerator)(nil)

// NewAnthropicGenerator creates a generator. Retries are left to Guarded.
func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "anthropic generator needs an API key", nil).
			WithSuggestion("Set ANTHROPIC_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicGenerator{client: &client, cfg: cfg}, nil
}

// Generate sends one user message under the system instruction and joins
// the text blocks of the reply.
func (a *AnthropicGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.cfg.Model),
		MaxTokens:   int64(a.cfg.MaxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(a.cfg.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("messages request: %w", err)
	}

	var sb strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			sb.WriteString(content.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// Model returns the model name.
func (a *AnthropicGenerator) Model() string { return a.cfg.Model }

// Close is a no-op.
func (a *AnthropicGenerator) Close() error { return nil }
