package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/coderag/internal/config"
	cerrors "github.com/Aman-CERP/coderag/internal/errors"
	"github.com/Aman-CERP/coderag/internal/store"
)

// Engine runs the single-query pipeline: dense, sparse and cards lookups in
// parallel, fusion, hydration and reranking.
type Engine struct {
	cfg      config.RetrievalConfig
	repos    *RepoSet
	dense    *DenseChannel
	sparse   *SparseChannel
	reranker *Reranker
}

// NewEngine wires the pipeline. dense may be nil for sparse-only retrieval.
func NewEngine(cfg config.RetrievalConfig, repos *RepoSet, dense *DenseChannel, reranker *Reranker) *Engine {
	return &Engine{
		cfg:      cfg,
		repos:    repos,
		dense:    dense,
		sparse:   NewSparseChannel(cfg.ChannelTimeout),
		reranker: reranker,
	}
}

// Search retrieves up to finalK reranked candidates for one query variant.
// The result is Degraded when one channel failed and Failed when both did
// (with an empty value); only cancellation of ctx is returned as an error.
func (e *Engine) Search(ctx context.Context, query, repo string, finalK int) (cerrors.Result[[]ScoredCandidate], error) {
	start := time.Now()
	if finalK <= 0 {
		finalK = e.cfg.FinalK
	}

	ri, err := e.repos.Get(repo)
	if err != nil {
		slog.Warn("repo_index_open_failed", slog.String("repo", repo), slog.String("error", err.Error()))
	}
	collection := ""
	if ri != nil {
		collection = ri.Collection
	}

	var (
		denseRes  cerrors.Result[[]Hit]
		sparseRes cerrors.Result[[]Hit]
		cardsRes  cerrors.Result[map[string]bool]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		denseRes = e.dense.Search(gctx, collection, query, e.cfg.TopKDense)
		return nil
	})
	g.Go(func() error {
		sparseRes = e.sparse.Search(gctx, ri, query, e.cfg.TopKSparse)
		return nil
	})
	if e.cfg.CardsEnabled {
		g.Go(func() error {
			cardsRes = e.sparse.Cards(gctx, ri, query, e.cfg.CardsTopK)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return cerrors.Failed[[]ScoredCandidate](err), err
	}

	logChannel(repo, "dense", denseRes.Status, denseRes.Err, len(denseRes.Value))
	logChannel(repo, "sparse", sparseRes.Status, sparseRes.Err, len(sparseRes.Value))

	fusionK := 2 * finalK
	fused := FuseIDs([][]string{ids(denseRes.Value), ids(sparseRes.Value)}, fusionK, e.cfg.RRFConstant)
	cands := e.candidates(fused, denseRes.Value, sparseRes.Value, cardsRes.Value, ri)

	cands = e.reranker.Rerank(ctx, query, repo, cands, finalK)

	slog.Debug("variant_search",
		slog.String("repo", repo),
		slog.String("query", truncateQuery(query, 80)),
		slog.Int("dense", len(denseRes.Value)),
		slog.Int("sparse", len(sparseRes.Value)),
		slog.Int("fused", len(fused)),
		slog.Int("returned", len(cands)),
		slog.Duration("took", time.Since(start)))

	switch {
	case !denseRes.IsOK() && !sparseRes.IsOK():
		return cerrors.Result[[]ScoredCandidate]{
			Value:  cands,
			Status: cerrors.StatusFailed,
			Err:    errors.Join(denseRes.Err, sparseRes.Err),
		}, nil
	case !denseRes.IsOK():
		return cerrors.Degraded(cands, denseRes.Err), nil
	case !sparseRes.IsOK():
		return cerrors.Degraded(cands, sparseRes.Err), nil
	}
	return cerrors.Ok(cands), nil
}

// candidates turns fused ids into hydrated candidates, preferring dense
// payload metadata and falling back to the catalog.
func (e *Engine) candidates(fused []string, dense, sparse []Hit, cards map[string]bool, ri *RepoIndex) []ScoredCandidate {
	meta := make(map[string]store.Snippet, len(dense)+len(sparse))
	denseRank := make(map[string]int, len(dense))
	sparseRank := make(map[string]int, len(sparse))
	for i, h := range sparse {
		meta[h.ID] = h.Snippet
		if _, ok := sparseRank[h.ID]; !ok {
			sparseRank[h.ID] = i + 1
		}
	}
	for i, h := range dense {
		if h.Snippet.FilePath != "" || meta[h.ID].FilePath == "" {
			meta[h.ID] = h.Snippet
		}
		if _, ok := denseRank[h.ID]; !ok {
			denseRank[h.ID] = i + 1
		}
	}

	snippets := make([]store.Snippet, len(fused))
	for i, id := range fused {
		s := meta[id]
		if s.FilePath == "" && ri != nil {
			if c, ok := ri.Catalog.Get(id); ok {
				s = c
			}
		}
		s.ID = id
		snippets[i] = s
	}
	if ri != nil && ri.Hydrator != nil {
		snippets = ri.Hydrator.Hydrate(snippets)
	}

	c := e.cfg.RRFConstant
	if c <= 0 {
		c = DefaultRRFConstant
	}
	out := make([]ScoredCandidate, len(fused))
	for i, id := range fused {
		sc := ScoredCandidate{
			Snippet:    snippets[i],
			DenseRank:  denseRank[id],
			SparseRank: sparseRank[id],
			FromCards:  cards[id],
		}
		if sc.DenseRank > 0 {
			sc.Fused += 1.0 / float64(c+sc.DenseRank)
		}
		if sc.SparseRank > 0 {
			sc.Fused += 1.0 / float64(c+sc.SparseRank)
		}
		out[i] = sc
	}
	return out
}

func logChannel(repo, channel string, status cerrors.Status, err error, n int) {
	if status == cerrors.StatusOK {
		return
	}
	slog.Warn("channel_degraded",
		slog.String("repo", repo),
		slog.String("channel", channel),
		slog.String("status", status.String()),
		slog.String("error", errString(err)),
		slog.Int("hits", n))
}
