package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/store"
)

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

// fakeVectors returns fixed hits for every query.
type fakeVectors struct {
	hits  []store.VectorHit
	err   error
	calls atomic.Int32
}

func (f *fakeVectors) Upsert(context.Context, string, []store.VectorPoint) error { return nil }

func (f *fakeVectors) Search(_ context.Context, _ string, _ []float32, k int) ([]store.VectorHit, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f *fakeVectors) Close() error { return nil }

// fakeGenerator answers from a function and counts calls.
type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	fn    func(system, prompt string) (string, error)
}

func (g *fakeGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return g.fn(system, prompt)
}

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakeEncoder scores documents with fn, or fails with err.
type fakeEncoder struct {
	model string
	err   error
	fn    func(doc string) float64
	calls atomic.Int32
}

func (e *fakeEncoder) Score(_ context.Context, _ string, docs []string) ([]float64, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([]float64, len(docs))
	for i, d := range docs {
		out[i] = e.fn(d)
	}
	return out, nil
}

func (e *fakeEncoder) Model() string { return e.model }

var errBackendDown = errors.New("backend down")

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.DefaultRepo = "webapp"
	cfg.Repos = []config.RepoConfig{
		{Name: "faxbot", Keywords: []string{"fax", "inbound", "t.38"}},
		{Name: "webapp", Keywords: []string{"react", "login page"}},
	}
	cfg.Retrieval.CardsEnabled = false
	cfg.Rerank.Backend = "none"
	return cfg
}

func testSnippets() []store.Snippet {
	return []store.Snippet{
		{ID: "s1", FilePath: "server/auth/token.go", StartLine: 1, EndLine: 20, Layer: "server", Origin: store.OriginFirstParty,
			Symbols: []string{"RefreshToken"}, Code: "func RefreshToken(ctx context.Context) error { // refresh the oauth token\n}"},
		{ID: "s2", FilePath: "web/ui/LoginButton.tsx", StartLine: 5, EndLine: 30, Layer: "ui", Origin: store.OriginFirstParty,
			Symbols: []string{"LoginButton"}, Code: "export function LoginButton() { return <button>login</button> }"},
		{ID: "s3", FilePath: "vendor/lib/retry.go", StartLine: 1, EndLine: 40, Layer: "kernel", Origin: store.OriginVendor,
			Symbols: []string{"Retry"}, Code: "func Retry(fn func() error) error { // retry with backoff\n}"},
		{ID: "s4", FilePath: "server/fax/inbound.py", StartLine: 10, EndLine: 60, Layer: "server", Origin: store.OriginFirstParty,
			Symbols: []string{"handle_inbound"}, Code: "def handle_inbound(fax):\n    # inbound fax handling\n    return store(fax)"},
	}
}

// newTestRepo builds an in-memory lexical index and a snippet file for repo.
func newTestRepo(t *testing.T, cfg *config.Config, repo string, snippets []store.Snippet) *RepoIndex {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, store.SnippetsFile)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, store.WriteSnippets(f, snippets))
	require.NoError(t, f.Close())

	idx, err := store.OpenBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	docs := make([]store.LexicalDoc, len(snippets))
	idList := make([]string, len(snippets))
	for i, s := range snippets {
		docs[i] = store.LexicalDoc{Position: i, Text: store.LexicalText(s)}
		idList[i] = s.ID
	}
	require.NoError(t, idx.Index(context.Background(), docs))

	hyd, err := store.NewHydrator(path, store.HydrateLazy, 2000, 64)
	require.NoError(t, err)

	return &RepoIndex{
		Name:       repo,
		Collection: cfg.CollectionFor(repo),
		Dir:        dir,
		Sparse:     idx,
		Positions:  store.NewPositionMap(idList),
		Catalog:    store.NewCatalog(snippets),
		Hydrator:   hyd,
	}
}

// denseHits turns snippets into vector hits with payload metadata only.
func denseHits(snippets ...store.Snippet) []store.VectorHit {
	out := make([]store.VectorHit, len(snippets))
	for i, s := range snippets {
		out[i] = store.VectorHit{ID: s.ID, Score: float32(0.9 - 0.1*float64(i)), Meta: s.Meta()}
	}
	return out
}
