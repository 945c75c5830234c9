package search

import (
	"context"
	"errors"
	"time"

	cerrors "github.com/Aman-CERP/coderag/internal/errors"
	"github.com/Aman-CERP/coderag/internal/store"
)

const defaultChannelTimeout = 5 * time.Second

// DenseChannel embeds the query and asks the vector index for neighbours in
// the repo's collection. Every failure is a degraded empty result.
type DenseChannel struct {
	index    store.VectorIndex
	embedder Embedder
	timeout  time.Duration
}

// NewDenseChannel creates a dense channel; nil index or embedder disables it.
func NewDenseChannel(index store.VectorIndex, embedder Embedder, timeout time.Duration) *DenseChannel {
	if timeout <= 0 {
		timeout = defaultChannelTimeout
	}
	return &DenseChannel{index: index, embedder: embedder, timeout: timeout}
}

// Search returns up to k hits in similarity order.
func (d *DenseChannel) Search(ctx context.Context, collection, query string, k int) cerrors.Result[[]Hit] {
	if d == nil || d.index == nil || d.embedder == nil {
		return cerrors.Degraded([]Hit{}, cerrors.New(cerrors.ErrCodeDenseUnavailable, "dense channel disabled", nil))
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	vec, err := d.embedder.Embed(ctx, query)
	if err != nil {
		return cerrors.Degraded([]Hit{}, channelError(cerrors.ErrCodeEmbedderUnavailable, "embed query", err))
	}
	found, err := d.index.Search(ctx, collection, vec, k)
	if err != nil {
		return cerrors.Degraded([]Hit{}, channelError(cerrors.ErrCodeDenseUnavailable, "vector search in "+collection, err))
	}

	hits := make([]Hit, 0, len(found))
	for _, h := range found {
		meta := h.Meta
		meta.ID = h.ID
		hits = append(hits, Hit{ID: h.ID, Snippet: meta, Score: float64(h.Score)})
	}
	return cerrors.Ok(hits)
}

// SparseChannel queries a repo's lexical index and resolves corpus
// positions to snippet metadata.
type SparseChannel struct {
	timeout time.Duration
}

// NewSparseChannel creates a sparse channel.
func NewSparseChannel(timeout time.Duration) *SparseChannel {
	if timeout <= 0 {
		timeout = defaultChannelTimeout
	}
	return &SparseChannel{timeout: timeout}
}

// Search returns up to k hits in lexical relevance order.
func (s *SparseChannel) Search(ctx context.Context, ri *RepoIndex, query string, k int) cerrors.Result[[]Hit] {
	if ri == nil || ri.Sparse == nil {
		var cause error
		if ri != nil {
			cause = ri.SparseErr
		}
		return cerrors.Degraded([]Hit{}, cerrors.New(cerrors.ErrCodeSparseUnavailable, "lexical index unavailable", cause))
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	found, err := ri.Sparse.Search(ctx, query, k)
	if err != nil {
		return cerrors.Degraded([]Hit{}, channelError(cerrors.ErrCodeSparseUnavailable, "lexical search", err))
	}
	hits := make([]Hit, 0, len(found))
	for _, h := range found {
		id, ok := ri.Positions.Resolve(h.Position)
		if !ok {
			continue
		}
		meta, ok := ri.Catalog.Get(id)
		if !ok {
			meta = store.Snippet{ID: id}
		}
		hits = append(hits, Hit{ID: id, Snippet: meta, Score: h.Score})
	}
	return cerrors.Ok(hits)
}

// Cards returns the snippet ids whose summary cards match query.
func (s *SparseChannel) Cards(ctx context.Context, ri *RepoIndex, query string, k int) cerrors.Result[map[string]bool] {
	if ri == nil || ri.Cards == nil {
		return cerrors.Degraded(map[string]bool{}, cerrors.New(cerrors.ErrCodeIndexMissing, "cards index unavailable", nil))
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	found, err := ri.Cards.Search(ctx, query, k)
	if err != nil {
		return cerrors.Degraded(map[string]bool{}, channelError(cerrors.ErrCodeSparseUnavailable, "cards search", err))
	}
	out := make(map[string]bool, len(found))
	for _, h := range found {
		if id, ok := ri.CardPositions.Resolve(h.Position); ok {
			out[id] = true
		}
	}
	return cerrors.Ok(out)
}

func channelError(code, msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		code = cerrors.ErrCodeBackendTimeout
	}
	return cerrors.New(code, msg, err)
}
