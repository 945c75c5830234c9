package generate

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// EstimateEncoding selects the 4-characters-per-token estimator.
const EstimateEncoding = "estimate"

const charsPerToken = 4

// Budget counts and truncates text in tokens. Without a loadable tiktoken
// encoding it falls back to a character estimate.
type Budget struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
}

// NewBudget returns a budget for a tiktoken encoding such as "cl100k_base".
// The encoding is loaded on first use.
func NewBudget(encoding string) *Budget {
	if encoding == "" {
		encoding = EstimateEncoding
	}
	return &Budget{encoding: encoding}
}

func (b *Budget) load() *tiktoken.Tiktoken {
	b.once.Do(func() {
		if b.encoding == EstimateEncoding {
			return
		}
		enc, err := tiktoken.GetEncoding(b.encoding)
		if err != nil {
			slog.Warn("tokenizer_unavailable",
				slog.String("encoding", b.encoding),
				slog.String("error", err.Error()))
			return
		}
		b.enc = enc
	})
	return b.enc
}

// Count returns the token count of text.
func (b *Budget) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := b.load(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Truncate returns the longest prefix of text within maxTokens.
func (b *Budget) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if enc := b.load(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text
		}
		return enc.Decode(tokens[:maxTokens])
	}
	limit := maxTokens * charsPerToken
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}
