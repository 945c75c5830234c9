package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/coderag/internal/search"
)

// FormatSearchResults renders rag_search output as markdown.
func FormatSearchResults(question string, out *RagSearchOutput) string {
	if out == nil || len(out.Results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", question)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\" in %s\n\n", question, out.Repo)
	sb.WriteString(fmt.Sprintf("Found %d result", len(out.Results)))
	if len(out.Results) != 1 {
		sb.WriteString("s")
	}
	if out.Degraded {
		sb.WriteString(" (degraded: a retrieval channel was unavailable)")
	}
	sb.WriteString("\n\n")

	for i, r := range out.Results {
		fmt.Fprintf(&sb, "%d. `%s` (score: %.3f)", i+1, r.Citation, r.RerankScore)
		if r.MatchReason != "" {
			fmt.Fprintf(&sb, " - %s", r.MatchReason)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatAnswer renders rag_answer output as markdown.
func FormatAnswer(out *RagAnswerOutput) string {
	var sb strings.Builder
	sb.WriteString(out.Answer)
	sb.WriteString("\n")
	if len(out.Citations) > 0 {
		sb.WriteString("\n**Citations:**\n")
		for _, c := range out.Citations {
			fmt.Fprintf(&sb, "- `%s`\n", c)
		}
	}
	fmt.Fprintf(&sb, "\n_repo: %s, confidence: %.2f, outcome: %s_\n", out.Repo, out.Confidence, out.Outcome)
	return sb.String()
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToSearchResultOutput converts a candidate to the slim output format.
func ToSearchResultOutput(repo string, c search.ScoredCandidate) SearchResultOutput {
	return SearchResultOutput{
		FilePath:    c.Snippet.FilePath,
		StartLine:   c.Snippet.StartLine,
		EndLine:     c.Snippet.EndLine,
		Language:    c.Snippet.Language,
		RerankScore: c.Final,
		Repo:        repo,
		Citation:    c.Snippet.Citation(),
		MatchReason: matchReason(c),
	}
}

func matchReason(c search.ScoredCandidate) string {
	var parts []string
	switch {
	case c.DenseRank > 0 && c.SparseRank > 0:
		parts = append(parts, fmt.Sprintf("semantic #%d and keyword #%d", c.DenseRank, c.SparseRank))
	case c.DenseRank > 0:
		parts = append(parts, fmt.Sprintf("semantic #%d", c.DenseRank))
	case c.SparseRank > 0:
		parts = append(parts, fmt.Sprintf("keyword #%d", c.SparseRank))
	}
	if c.FromCards {
		parts = append(parts, "summary card match")
	}
	if c.Bonus > 0 {
		parts = append(parts, fmt.Sprintf("bonus +%.2f", c.Bonus))
	}
	return strings.Join(parts, "; ")
}
