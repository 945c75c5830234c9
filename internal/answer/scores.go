package answer

import "github.com/Aman-CERP/coderag/internal/search"

// topScore returns the best final score, or 0 for no candidates.
func topScore(cands []search.ScoredCandidate) float64 {
	if len(cands) == 0 {
		return 0
	}
	best := cands[0].Final
	for _, c := range cands[1:] {
		best = max(best, c.Final)
	}
	return best
}

// meanTop returns the mean final score of the first n candidates.
func meanTop(cands []search.ScoredCandidate, n int) float64 {
	if n <= 0 || n > len(cands) {
		n = len(cands)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range cands[:n] {
		sum += c.Final
	}
	return sum / float64(n)
}

// confidence is the mean final score over every candidate.
func confidence(cands []search.ScoredCandidate) float64 {
	return meanTop(cands, 0)
}

// citations renders file:start-end for the first n candidates, skipping repeats.
func citations(cands []search.ScoredCandidate, n int) []string {
	out := make([]string, 0, n)
	seen := make(map[string]bool, n)
	for _, c := range cands {
		if len(out) >= n {
			break
		}
		cite := c.Snippet.Citation()
		if seen[cite] {
			continue
		}
		seen[cite] = true
		out = append(out, cite)
	}
	return out
}
