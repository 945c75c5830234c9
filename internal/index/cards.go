package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/Aman-CERP/coderag/internal/generate"
	"github.com/Aman-CERP/coderag/internal/store"
)

// CardGenerator summarizes a snippet as a retrieval card.
type CardGenerator interface {
	Card(ctx context.Context, s store.Snippet) (store.Card, error)
	Name() string
}

// routePattern matches route registrations in common web frameworks:
// @app.get("/x"), router.post('/x'), mux.HandleFunc("/x", ...).
var routePattern = regexp.MustCompile("\\.(?:get|post|put|patch|delete|route|api_route|HandleFunc|Handle)\\(\\s*[\"'`](/[^\"'`]*)")

// PatternCards derives cards from snippet metadata and source comments.
type PatternCards struct{}

// NewPatternCards creates a pattern-based card generator.
func NewPatternCards() *PatternCards { return &PatternCards{} }

// Name implements CardGenerator.
func (PatternCards) Name() string { return "pattern" }

// Card implements CardGenerator.
func (PatternCards) Card(_ context.Context, s store.Snippet) (store.Card, error) {
	card := store.Card{
		ID:       s.ID,
		FilePath: s.FilePath,
		Symbols:  append([]string(nil), s.Symbols...),
		Routes:   extractRoutes(s.Code),
	}
	card.Purpose = docSentence(s.Code)
	if card.Purpose == "" {
		card.Purpose = describe(s)
	}
	return card, nil
}

func extractRoutes(code string) []string {
	var routes []string
	seen := make(map[string]bool)
	for _, m := range routePattern.FindAllStringSubmatch(code, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			routes = append(routes, m[1])
		}
	}
	return routes
}

// describe builds a purpose line from location when the code has no doc.
func describe(s store.Snippet) string {
	kind := s.Layer
	if kind == "" {
		kind = s.Language
	}
	if kind == "" {
		kind = "code"
	}
	where := path.Dir(s.FilePath)
	if len(s.Symbols) > 0 {
		return fmt.Sprintf("%s %s in %s", kind, strings.Join(s.Symbols, ", "), where)
	}
	return fmt.Sprintf("%s in %s", kind, s.FilePath)
}

// docSentence returns the first sentence of the first comment or docstring.
func docSentence(code string) string {
	inDoc := false
	var doc []string
	for _, line := range strings.Split(code, "\n") {
		t := strings.TrimSpace(line)
		switch {
		case inDoc:
			if i := strings.Index(t, `"""`); i >= 0 {
				doc = append(doc, t[:i])
				return firstSentence(strings.Join(doc, " "))
			}
			doc = append(doc, t)
		case strings.HasPrefix(t, `"""`):
			rest := strings.TrimPrefix(t, `"""`)
			if i := strings.Index(rest, `"""`); i >= 0 {
				return firstSentence(rest[:i])
			}
			inDoc = true
			doc = append(doc, rest)
		case strings.HasPrefix(t, "//"), strings.HasPrefix(t, "#") && !strings.HasPrefix(t, "#!"):
			text := strings.TrimSpace(strings.TrimLeft(t, "/#"))
			if text != "" {
				return firstSentence(text)
			}
		case strings.HasPrefix(t, "/*"), strings.HasPrefix(t, "*"):
			text := strings.TrimSpace(strings.Trim(t, "/* "))
			if text != "" {
				return firstSentence(text)
			}
		}
	}
	return ""
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, ". "); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSuffix(text, ".")
	if len(text) > 160 {
		text = text[:160]
	}
	return text
}

const cardPrompt = "Summarize this code chunk for retrieval as a JSON object with keys: " +
	"symbols (array of names: functions/classes/components/routes), purpose (short sentence), " +
	"routes (array of route paths if any). Respond with only the JSON.\n\n"

const cardCodeChars = 2000

// LLMCards asks a text generator for each card.
type LLMCards struct {
	gen generate.Generator
}

// NewLLMCards creates a generator-backed card source.
func NewLLMCards(gen generate.Generator) *LLMCards {
	return &LLMCards{gen: gen}
}

// Name implements CardGenerator.
func (l *LLMCards) Name() string { return "llm:" + l.gen.Model() }

// Card implements CardGenerator.
func (l *LLMCards) Card(ctx context.Context, s store.Snippet) (store.Card, error) {
	code := s.Code
	if len(code) > cardCodeChars {
		code = code[:cardCodeChars]
	}
	out, err := l.gen.Generate(ctx, "", cardPrompt+code)
	if err != nil {
		return store.Card{}, err
	}
	card, err := parseCard(out)
	if err != nil {
		return store.Card{}, err
	}
	card.ID = s.ID
	card.FilePath = s.FilePath
	return card, nil
}

// parseCard extracts the JSON object from a model reply, tolerating code
// fences and surrounding prose.
func parseCard(reply string) (store.Card, error) {
	var card store.Card
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return card, fmt.Errorf("no JSON object in reply")
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &card); err != nil {
		return card, fmt.Errorf("parse card: %w", err)
	}
	return card, nil
}

// HybridCards prefers the LLM and falls back to patterns on any failure.
type HybridCards struct {
	llm     CardGenerator
	pattern *PatternCards
}

// NewHybridCards creates a hybrid generator. A nil llm uses patterns only.
func NewHybridCards(llm CardGenerator) *HybridCards {
	return &HybridCards{llm: llm, pattern: NewPatternCards()}
}

// Name implements CardGenerator.
func (h *HybridCards) Name() string {
	if h.llm != nil {
		return h.llm.Name() + "+pattern"
	}
	return h.pattern.Name()
}

// Card implements CardGenerator.
func (h *HybridCards) Card(ctx context.Context, s store.Snippet) (store.Card, error) {
	if h.llm != nil {
		card, err := h.llm.Card(ctx, s)
		if err == nil {
			return card, nil
		}
		if ctx.Err() != nil {
			return store.Card{}, ctx.Err()
		}
		slog.Debug("card_llm_failed", slog.String("id", s.ID), slog.String("error", err.Error()))
	}
	return h.pattern.Card(ctx, s)
}

// FillCards returns existing cards plus generated ones for snippets that
// have none, in snippet order after the existing ones. limit > 0 bounds the
// number generated.
func FillCards(ctx context.Context, gen CardGenerator, snippets []store.Snippet, existing []store.Card, limit int, progress func(done, total int)) ([]store.Card, error) {
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c.ID] = true
	}
	var todo []store.Snippet
	for _, s := range snippets {
		if !have[s.ID] {
			todo = append(todo, s)
		}
	}
	if limit > 0 && len(todo) > limit {
		todo = todo[:limit]
	}

	out := append([]store.Card(nil), existing...)
	for i, s := range todo {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		card, err := gen.Card(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("card for %s: %w", s.ID, err)
		}
		out = append(out, card)
		if progress != nil {
			progress(i+1, len(todo))
		}
	}
	return out, nil
}
