package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/coderag/internal/config"
	cerrors "github.com/Aman-CERP/coderag/internal/errors"
)

// Models whose raw output is an unbounded logit.
var logitModels = []string{"bge-reranker", "cross-encoder", "mxbai", "jina-reranker"}

const defaultSnippetChars = 600

// Reranker scores candidates with a cross-encoder and adds the heuristic
// bonuses from ScoringRules. It never returns an error: a failing backend
// yields synthetic scores.
type Reranker struct {
	encoder      CrossEncoder
	breaker      *cerrors.CircuitBreaker
	rules        *ScoringRules
	snippetChars int
	timeout      time.Duration
	logits       bool
}

// NewReranker creates a reranker. A nil encoder always uses synthetic scores.
func NewReranker(encoder CrossEncoder, rules *ScoringRules, cfg config.RerankConfig) *Reranker {
	r := &Reranker{
		encoder:      encoder,
		breaker:      cerrors.NewCircuitBreaker("reranker"),
		rules:        rules,
		snippetChars: cfg.SnippetChars,
		timeout:      cfg.Timeout,
	}
	if r.snippetChars <= 0 {
		r.snippetChars = defaultSnippetChars
	}
	if encoder != nil {
		model := strings.ToLower(encoder.Model())
		for _, m := range logitModels {
			if strings.Contains(model, m) {
				r.logits = true
				break
			}
		}
	}
	return r
}

// NewCrossEncoderFromConfig returns nil when reranking is disabled.
func NewCrossEncoderFromConfig(cfg config.RerankConfig) CrossEncoder {
	switch strings.ToLower(cfg.Backend) {
	case "", "none", "off", "disabled":
		return nil
	}
	return NewHTTPCrossEncoder(HTTPCrossEncoderConfig{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		Timeout:  cfg.Timeout,
	})
}

// Rerank scores cands against query, adds bonuses for the routed repo, sorts
// stably by Final and truncates to topK (topK <= 0 keeps all). Final is
// recomputed from Raw and Bonus on every call, so reranking an already
// reranked list does not accumulate bonuses.
func (r *Reranker) Rerank(ctx context.Context, query, repo string, cands []ScoredCandidate, topK int) []ScoredCandidate {
	if len(cands) == 0 {
		return []ScoredCandidate{}
	}
	out := make([]ScoredCandidate, len(cands))
	copy(out, cands)

	raw := r.rawScores(ctx, query, out)
	switch raw.Status {
	case cerrors.StatusOK:
		for i := range out {
			out[i].Raw = raw.Value[i]
			out[i].Scored = true
		}
	default:
		slog.Debug("rerank_degraded",
			slog.String("reason", errString(raw.Err)),
			slog.Int("candidates", len(out)))
		if !allScored(out) {
			for i := range out {
				out[i].Raw = 1.0 - float64(i)*0.01
				out[i].Scored = true
			}
		}
	}

	terms := newTermSet(query)
	intent := r.rules.ClassifyIntent(query)
	for i := range out {
		out[i].Bonus = r.rules.Bonus(terms, intent, repo, out[i]).Total()
		out[i].Final = out[i].Raw + out[i].Bonus
	}

	SortByFinal(out)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// SortByFinal sorts descending by Final, keeping input order on ties.
func SortByFinal(cands []ScoredCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Final > cands[j].Final
	})
}

func (r *Reranker) rawScores(ctx context.Context, query string, cands []ScoredCandidate) cerrors.Result[[]float64] {
	if r.encoder == nil {
		return cerrors.Degraded[[]float64](nil, cerrors.New(cerrors.ErrCodeRerankUnavailable, "reranking disabled", nil))
	}

	docs := make([]string, len(cands))
	for i, c := range cands {
		docs[i] = c.Snippet.FilePath + "\n\n" + prefix(c.Snippet.Code, r.snippetChars)
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	scores, err := cerrors.CircuitExecute(r.breaker, func() ([]float64, error) {
		return r.encoder.Score(callCtx, query, docs)
	})
	if err != nil {
		return cerrors.Degraded[[]float64](nil, cerrors.New(cerrors.ErrCodeRerankUnavailable, "cross-encoder failed", err))
	}
	if len(scores) != len(cands) {
		return cerrors.Degraded[[]float64](nil, cerrors.New(cerrors.ErrCodeRerankUnavailable,
			fmt.Sprintf("cross-encoder returned %d scores for %d documents", len(scores), len(cands)), nil))
	}
	return cerrors.Ok(normalizeScores(scores, r.logits))
}

// normalizeScores maps logits through a sigmoid and passes other scores
// through. Each score depends only on its own pair, so reranking a subset
// reproduces the same Raw values.
func normalizeScores(scores []float64, logits bool) []float64 {
	out := make([]float64, len(scores))
	copy(out, scores)
	if logits {
		for i, s := range out {
			out[i] = 1.0 / (1.0 + math.Exp(-s))
		}
	}
	return out
}
