package answer

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/coderag/internal/generate"
	"github.com/Aman-CERP/coderag/internal/search"
)

const (
	answerSystemPrompt = "You answer questions about a codebase using only the provided context. " +
		"If the context does not contain the answer, say so. Always cite sources as file:start-end."

	answerPromptFormat = "Question: %s\n\nContext:\n%s\n" +
		"Answer only from the context above and cite every claim as file:start-end."

	rewriteSystemPrompt = "Rewrite a developer question so it retrieves better from a code search index. " +
		"Expand abbreviations and add likely identifier names. Keep the meaning. Reply with the rewritten question only."

	// A trailing document is truncated only if at least this many tokens remain.
	minDocTokens = 64
)

// contextBuilder packs candidate snippets into a token-bounded context.
type contextBuilder struct {
	budget    *generate.Budget
	maxDocs   int
	maxTokens int
}

// build renders up to maxDocs candidates as fenced blocks headed by their
// citation, stopping once maxTokens would be exceeded.
func (b contextBuilder) build(cands []search.ScoredCandidate) string {
	var sb strings.Builder
	used := 0
	for i, c := range cands {
		if b.maxDocs > 0 && i >= b.maxDocs {
			break
		}
		doc := renderDoc(c)
		n := b.budget.Count(doc)
		if b.maxTokens > 0 && used+n > b.maxTokens {
			remaining := b.maxTokens - used
			if remaining >= minDocTokens {
				sb.WriteString(b.budget.Truncate(doc, remaining))
				sb.WriteString("\n```\n")
			}
			break
		}
		sb.WriteString(doc)
		used += n
	}
	return sb.String()
}

func renderDoc(c search.ScoredCandidate) string {
	s := c.Snippet
	return fmt.Sprintf("### %s\n```%s\n%s\n```\n\n", s.Citation(), s.Language, strings.TrimRight(s.Code, "\n"))
}

func answerPrompt(question, context string) string {
	return fmt.Sprintf(answerPromptFormat, question, context)
}

// firstLine returns the first non-empty line of a generator reply.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), `"'`))
		if line != "" {
			return line
		}
	}
	return ""
}

// unavailableAnswer lists the best matches when the generator is down.
func unavailableAnswer(cites []string) string {
	var sb strings.Builder
	sb.WriteString("The answer generator is unavailable. The most relevant code is:\n")
	for _, c := range cites {
		sb.WriteString("- ")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
