package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	expandSystemPrompt = "Rewrite a developer query into multiple search-friendly variants without changing meaning."
	expandPromptFormat = "Count: %d\nQuery: %s\nOutput one variant per line, no numbering."

	defaultExpandTimeout = 20 * time.Second
)

// Expander produces paraphrase variants of a question for broader recall.
type Expander struct {
	gen     Generator
	timeout time.Duration
}

// NewExpander creates an expander. A nil generator always yields the question alone.
func NewExpander(gen Generator, timeout time.Duration) *Expander {
	if timeout <= 0 {
		timeout = defaultExpandTimeout
	}
	return &Expander{gen: gen, timeout: timeout}
}

// Expand returns up to m distinct variants, the question first. m <= 1 and
// generator failure both return just the question, and m <= 1 makes no call.
func (x *Expander) Expand(ctx context.Context, question string, m int) []string {
	if m <= 1 || x.gen == nil {
		return []string{question}
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	text, err := x.gen.Generate(ctx, expandSystemPrompt, fmt.Sprintf(expandPromptFormat, m, question))
	if err != nil {
		slog.Debug("query_expansion_failed", slog.String("error", err.Error()))
		return []string{question}
	}
	return variantLines(question, text, m)
}

func variantLines(question, text string, m int) []string {
	out := []string{question}
	seen := map[string]bool{normalizeVariant(question): true}
	for _, line := range strings.Split(text, "\n") {
		v := strings.TrimSpace(line)
		v = strings.TrimSpace(strings.TrimLeft(v, "-*•"))
		if v == "" {
			continue
		}
		key := normalizeVariant(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
		if len(out) >= m {
			break
		}
	}
	return out
}

func normalizeVariant(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
