// Package search implements hybrid retrieval: dense and sparse channels,
// reciprocal rank fusion, signal reranking, query expansion, repo routing and
// the multi-variant orchestrator.
package search

import (
	"context"

	"github.com/Aman-CERP/coderag/internal/store"
)

// Hit is one channel result in rank order.
type Hit struct {
	ID      string
	Snippet store.Snippet
	Score   float64
}

// ScoredCandidate is a snippet plus its provenance and scores for one query.
// Final is always Raw + Bonus after reranking.
type ScoredCandidate struct {
	Snippet store.Snippet

	// DenseRank and SparseRank are 1-indexed; 0 means absent from that channel.
	DenseRank  int
	SparseRank int
	FromCards  bool

	Fused float64
	Raw   float64
	Bonus float64
	Final float64

	// Scored is set once a reranker has assigned Raw.
	Scored bool
}

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator is a single-turn text completion backend.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// ids returns hit ids in order.
func ids(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

// Snippets extracts the snippets from candidates.
func Snippets(cands []ScoredCandidate) []store.Snippet {
	out := make([]store.Snippet, len(cands))
	for i, c := range cands {
		out[i] = c.Snippet
	}
	return out
}
