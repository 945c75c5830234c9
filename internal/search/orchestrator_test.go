package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/coderag/internal/config"
	cerrors "github.com/Aman-CERP/coderag/internal/errors"
	"github.com/Aman-CERP/coderag/internal/store"
)

type pipeline struct {
	cfg    *config.Config
	repos  *RepoSet
	engine *Engine
	orch   *Orchestrator
}

// newPipeline wires the orchestrator over ri with no cross-encoder.
// vectors may be nil for a disabled dense channel.
func newPipeline(cfg *config.Config, ri *RepoIndex, vectors store.VectorIndex, gen Generator) *pipeline {
	repos := NewRepoSet(cfg)
	repos.Put(ri)
	rules := NewScoringRules(cfg)
	rr := NewReranker(nil, rules, cfg.Rerank)
	var dense *DenseChannel
	if vectors != nil {
		dense = NewDenseChannel(vectors, fakeEmbedder{}, time.Second)
	}
	engine := NewEngine(cfg.Retrieval, repos, dense, rr)
	orch := NewOrchestrator(NewRouter(cfg), NewExpander(gen, time.Second), engine, rr, rules, cfg.Retrieval)
	return &pipeline{cfg: cfg, repos: repos, engine: engine, orch: orch}
}

func spans(cands []ScoredCandidate) map[store.Span]int {
	out := make(map[store.Span]int)
	for _, c := range cands {
		out[c.Snippet.Span()]++
	}
	return out
}

func candidateIDs(cands []ScoredCandidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Snippet.ID
	}
	return out
}

func TestSearchMulti_MergesVariantsWithoutDuplicates(t *testing.T) {
	// Given: healthy dense and sparse channels and a generator with two paraphrases
	cfg := testConfig()
	snippets := testSnippets()
	ri := newTestRepo(t, cfg, "webapp", snippets)
	vectors := &fakeVectors{hits: denseHits(snippets[0], snippets[1])}
	gen := &fakeGenerator{fn: func(string, string) (string, error) {
		return "oauth token refresh logic\nrefresh token", nil
	}}
	p := newPipeline(cfg, ri, vectors, gen)

	// When: searching with three variants
	got, err := p.orch.SearchMulti(context.Background(), "how is the oauth token refreshed", "", 3, 3)

	// Then: every variant ran, spans are unique and the auth file leads with its body hydrated
	require.NoError(t, err)
	assert.Equal(t, "webapp", got.Repo)
	assert.Len(t, got.Variants, 3)
	assert.Equal(t, int32(3), vectors.calls.Load())
	assert.Equal(t, 1, gen.Calls())
	assert.False(t, got.Degraded)
	require.NotEmpty(t, got.Candidates)
	assert.LessOrEqual(t, len(got.Candidates), 3)
	for span, n := range spans(got.Candidates) {
		assert.Equal(t, 1, n, span)
	}
	assert.Equal(t, "s1", got.Candidates[0].Snippet.ID)
	assert.NotEmpty(t, got.Candidates[0].Snippet.Code)
	for i := 1; i < len(got.Candidates); i++ {
		assert.GreaterOrEqual(t, got.Candidates[i-1].Final, got.Candidates[i].Final)
	}
}

func TestSearchMulti_DenseFailureDegrades(t *testing.T) {
	cfg := testConfig()
	ri := newTestRepo(t, cfg, "webapp", testSnippets())
	p := newPipeline(cfg, ri, &fakeVectors{err: errBackendDown}, nil)

	got, err := p.orch.SearchMulti(context.Background(), "oauth token", "", 1, 5)

	require.NoError(t, err)
	assert.True(t, got.Degraded)
	assert.Contains(t, candidateIDs(got.Candidates), "s1")
	for _, c := range got.Candidates {
		assert.Zero(t, c.DenseRank)
	}
}

func TestSearchMulti_BothChannelsFailedIsEmpty(t *testing.T) {
	// Given: a failing dense backend and a repo with no lexical index
	cfg := testConfig()
	ri := &RepoIndex{Name: "webapp", Collection: cfg.CollectionFor("webapp")}
	p := newPipeline(cfg, ri, &fakeVectors{err: errBackendDown}, nil)

	// When: searching
	got, err := p.orch.SearchMulti(context.Background(), "oauth token", "", 1, 5)

	// Then: no error, no candidates, marked degraded
	require.NoError(t, err)
	assert.Empty(t, got.Candidates)
	assert.True(t, got.Degraded)
}

func TestSearchMulti_EmptyQuestion(t *testing.T) {
	cfg := testConfig()
	p := newPipeline(cfg, &RepoIndex{Name: "webapp"}, nil, nil)

	for _, q := range []string{"", "   ", "faxbot:"} {
		_, err := p.orch.SearchMulti(context.Background(), q, "", 1, 5)
		assert.Error(t, err, q)
	}
}

func TestSearchMulti_CancelledContext(t *testing.T) {
	cfg := testConfig()
	ri := newTestRepo(t, cfg, "webapp", testSnippets())
	p := newPipeline(cfg, ri, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.orch.SearchMulti(ctx, "oauth token", "", 1, 5)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchMulti_RoutesByPrefixAndStripsIt(t *testing.T) {
	cfg := testConfig()
	ri := newTestRepo(t, cfg, "faxbot", testSnippets())
	p := newPipeline(cfg, ri, nil, nil)

	got, err := p.orch.SearchMulti(context.Background(), "faxbot: handle inbound", "webapp", 1, 5)

	require.NoError(t, err)
	assert.Equal(t, "faxbot", got.Repo)
	assert.Equal(t, "handle inbound", got.Question)
	assert.Contains(t, candidateIDs(got.Candidates), "s4")
}

func TestEngineSearch_RecordsChannelRanks(t *testing.T) {
	cfg := testConfig()
	snippets := testSnippets()
	ri := newTestRepo(t, cfg, "webapp", snippets)
	p := newPipeline(cfg, ri, &fakeVectors{hits: denseHits(snippets[1], snippets[0])}, nil)

	res, err := p.engine.Search(context.Background(), "LoginButton", "webapp", 4)

	require.NoError(t, err)
	assert.Equal(t, cerrors.StatusOK, res.Status)
	byID := make(map[string]ScoredCandidate)
	for _, c := range res.Value {
		byID[c.Snippet.ID] = c
	}
	require.Contains(t, byID, "s2")
	assert.Equal(t, 1, byID["s2"].DenseRank)
	assert.Equal(t, 1, byID["s2"].SparseRank)
	assert.Equal(t, 2, byID["s1"].DenseRank)
	assert.InDelta(t, 1.0/61+1.0/61, byID["s2"].Fused, 1e-12)
}

func TestEngineSearch_BothFailedStatus(t *testing.T) {
	cfg := testConfig()
	p := newPipeline(cfg, &RepoIndex{Name: "webapp"}, &fakeVectors{err: errBackendDown}, nil)

	res, err := p.engine.Search(context.Background(), "x", "webapp", 4)

	require.NoError(t, err)
	assert.Equal(t, cerrors.StatusFailed, res.Status)
	assert.Empty(t, res.Value)
	assert.Error(t, res.Err)
}

func TestRepoSet_ReloadReopensFromDisk(t *testing.T) {
	cfg := testConfig()
	cfg.DataRoot = t.TempDir()
	ri := newTestRepo(t, cfg, "webapp", testSnippets())
	repos := NewRepoSet(cfg)
	repos.Put(ri)

	got, err := repos.Get("webapp")
	require.NoError(t, err)
	assert.Same(t, ri, got)

	repos.Reload("webapp")
	reopened, err := repos.Get("webapp")

	require.NoError(t, err)
	assert.NotSame(t, ri, reopened)
	assert.Nil(t, reopened.Sparse)
	assert.Error(t, reopened.SparseErr)
}

func TestApplyFilenameBoosts(t *testing.T) {
	// Given: candidates matching by basename, by directory and not at all
	cands := []ScoredCandidate{
		{Snippet: store.Snippet{ID: "c", FilePath: "other/y.go"}, Final: 0.7},
		{Snippet: store.Snippet{ID: "b", FilePath: "inbound/x.go"}, Final: 0.5},
		{Snippet: store.Snippet{ID: "a", FilePath: "server/fax/inbound.py"}, Final: 0.5},
		{Snippet: store.Snippet{ID: "d", FilePath: "inbound/zero.go"}, Final: 0},
	}

	// When: boosting for "inbound handler"
	ApplyFilenameBoosts("Where is the inbound handler?", cands, 1.5, 1.2)

	// Then: basename beats directory, zero scores stay put
	assert.Equal(t, []string{"a", "c", "b", "d"}, candidateIDs(cands))
	assert.InDelta(t, 0.75, cands[0].Final, 1e-9)
	assert.InDelta(t, 0.6, cands[2].Final, 1e-9)
	assert.Zero(t, cands[3].Final)
}

func TestFilenameTerms(t *testing.T) {
	assert.Equal(t, []string{"inbound", "fax", "handler", "used"}, filenameTerms("How is the inbound-fax/handler used?"))
}

func TestMergeCandidates_KeepsFirstPerSpan(t *testing.T) {
	a := ScoredCandidate{Snippet: store.Snippet{ID: "a1", FilePath: "a.go", StartLine: 1, EndLine: 5}, Final: 0.2}
	dup := ScoredCandidate{Snippet: store.Snippet{ID: "a2", FilePath: "a.go", StartLine: 1, EndLine: 5}, Final: 0.9}
	b := ScoredCandidate{Snippet: store.Snippet{ID: "b", FilePath: "b.go", StartLine: 1, EndLine: 5}}

	got := MergeCandidates([]ScoredCandidate{a, b}, []ScoredCandidate{dup})

	assert.Equal(t, []string{"a1", "b"}, candidateIDs(got))
}
