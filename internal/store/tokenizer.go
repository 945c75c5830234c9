package store

import (
	"regexp"
	"strings"
	"unicode"
)

var wordRegex = regexp.MustCompile(`[A-Za-z0-9_]+`)

// TokenizeCode splits text into lowercase tokens, breaking identifiers on
// snake_case and camelCase boundaries. Tokens shorter than two bytes are dropped.
func TokenizeCode(text string) []string {
	var tokens []string
	for _, word := range wordRegex.FindAllString(text, -1) {
		for _, part := range SplitIdentifier(word) {
			if len(part) >= 2 {
				tokens = append(tokens, strings.ToLower(part))
			}
		}
	}
	return tokens
}

// SplitIdentifier splits snake_case first, then camelCase within each part.
//
//	"parseHTTPRequest" -> ["parse", "HTTP", "Request"]
//	"send_fax_job"     -> ["send", "fax", "job"]
func SplitIdentifier(word string) []string {
	var out []string
	for _, part := range strings.Split(word, "_") {
		if part != "" {
			out = append(out, splitCamel(part)...)
		}
	}
	return out
}

func splitCamel(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
			out = append(out, string(runes[start:i]))
			start = i
		}
	}
	return append(out, string(runes[start:]))
}

// StopWords are dropped at index and query time: English function words and
// keywords so common in code that they carry no signal.
var StopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "do", "does", "for", "from",
	"how", "in", "is", "it", "of", "on", "or", "the", "this", "to", "what",
	"when", "where", "which", "who", "why", "with",
	"var", "let", "const", "func", "function", "def", "class", "return",
	"if", "else", "while", "self", "import", "package", "new", "nil", "null",
	"none", "true", "false", "err", "ctx", "tmp",
}

func stopWordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

var defaultStopWords = stopWordSet(StopWords)

// IsStopWord reports whether w (any case) is dropped by the code analyzer.
func IsStopWord(w string) bool {
	_, ok := defaultStopWords[strings.ToLower(w)]
	return ok
}
