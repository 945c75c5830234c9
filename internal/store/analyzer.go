package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

// The analysis chain is the one contract shared by index build and query:
// code tokenizer, lowercase, stop words, porter stemming.
const (
	CodeTokenizerName  = "coderag_tokenizer"
	CodeStopFilterName = "coderag_stop"
	CodeAnalyzerName   = "coderag_code"

	textField = "text"
)

func init() {
	_ = registry.RegisterTokenizer(CodeTokenizerName, func(map[string]interface{}, *registry.Cache) (analysis.Tokenizer, error) {
		return codeTokenizer{}, nil
	})
	_ = registry.RegisterTokenFilter(CodeStopFilterName, func(map[string]interface{}, *registry.Cache) (analysis.TokenFilter, error) {
		return stopFilter{words: stopWordSet(StopWords)}, nil
	})
}

// NewCodeMapping returns an index mapping whose default analyzer is the code analyzer.
func NewCodeMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(CodeAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     CodeTokenizerName,
		"token_filters": []string{lowercase.Name, CodeStopFilterName, porter.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("add code analyzer: %w", err)
	}
	m.DefaultAnalyzer = CodeAnalyzerName
	return m, nil
}

var (
	analyzerOnce sync.Once
	codeAnalyzer analysis.Analyzer
	analyzerErr  error
)

// Analyze runs text through the code analyzer and returns the terms.
// Backends that tokenize outside bleve (SQLite FTS5) use this so both agree.
func Analyze(text string) []string {
	analyzerOnce.Do(func() {
		m, err := NewCodeMapping()
		if err != nil {
			analyzerErr = err
			return
		}
		codeAnalyzer = m.AnalyzerNamed(CodeAnalyzerName)
		if codeAnalyzer == nil {
			analyzerErr = fmt.Errorf("analyzer %s not registered", CodeAnalyzerName)
		}
	})
	if analyzerErr != nil {
		// Unreachable with the built-in registrations; keep tokenization usable.
		return TokenizeCode(text)
	}
	stream := codeAnalyzer.Analyze([]byte(text))
	terms := make([]string, 0, len(stream))
	for _, tok := range stream {
		terms = append(terms, string(tok.Term))
	}
	return terms
}

type codeTokenizer struct{}

func (codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lower := strings.ToLower(text)
	tokens := TokenizeCode(text)

	stream := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, tok := range tokens {
		start := strings.Index(lower[offset:], tok)
		if start < 0 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(tok)
		if end > len(text) {
			end = len(text)
		}
		stream = append(stream, &analysis.Token{
			Term:     []byte(tok),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		offset = end
	}
	return stream
}

type stopFilter struct {
	words map[string]struct{}
}

func (f stopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := input[:0]
	for _, tok := range input {
		if _, stop := f.words[string(tok.Term)]; !stop {
			out = append(out, tok)
		}
	}
	return out
}
