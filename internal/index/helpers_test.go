package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/store"
	"github.com/Aman-CERP/coderag/internal/ui"
)

// MockRenderer records renderer calls.
type MockRenderer struct {
	mu              sync.Mutex
	ProgressEvents  []ui.ProgressEvent
	ErrorEvents     []ui.ErrorEvent
	CompletionStats ui.CompletionStats
	CompleteCalled  bool
}

func (m *MockRenderer) Start(context.Context) error { return nil }

func (m *MockRenderer) UpdateProgress(event ui.ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProgressEvents = append(m.ProgressEvents, event)
}

func (m *MockRenderer) AddError(event ui.ErrorEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorEvents = append(m.ErrorEvents, event)
}

func (m *MockRenderer) Complete(stats ui.CompletionStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteCalled = true
	m.CompletionStats = stats
}

func (m *MockRenderer) Stop() error { return nil }

// fakeEmbedder maps each text to a 3-d vector keyed on its length.
type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, float32(len(text)%7) + 1, 0.5}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake-embed" }
func (f *fakeEmbedder) Close() error      { return nil }

// failingCards always errors.
type failingCards struct{}

func (failingCards) Card(context.Context, store.Snippet) (store.Card, error) {
	return store.Card{}, errors.New("model offline")
}
func (failingCards) Name() string { return "llm:offline" }

func testSnippets() []store.Snippet {
	return []store.Snippet{
		{
			ID: "s1", FilePath: "api/app/outbound.py", StartLine: 1, EndLine: 4, Language: "python",
			Layer: "server", Hash: "h1", Symbols: []string{"send_fax"},
			Code: "def send_fax(to, pdf):\n    \"\"\"Queue an outbound fax job.\"\"\"\n    return queue(to, pdf)\n",
		},
		{
			ID: "s2", FilePath: "web/src/Theme.tsx", StartLine: 1, EndLine: 2, Language: "typescript",
			Layer: "frontend", Hash: "h2", Symbols: []string{"Theme"},
			Code: "export const Theme = { color: 'blue' }\n",
		},
	}
}

// testConfig returns a config rooted in a temp dir with repo "demo"
// holding snippets.
func testConfig(t *testing.T, snippets []store.Snippet) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.DataRoot = t.TempDir()
	cfg.Retrieval.DenseBackend = "hnsw"
	cfg.Retrieval.SparseBackend = "bleve"
	cfg.Index.Cards = "pattern"
	cfg.Index.Enrich = false
	cfg.Index.BatchSize = 1
	if snippets != nil {
		writeTestSnippets(t, cfg.DataDirFor("demo"), snippets)
	}
	return cfg
}

func writeTestSnippets(t *testing.T, dir string, snippets []store.Snippet) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	f, err := os.Create(filepath.Join(dir, store.SnippetsFile))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, store.WriteSnippets(f, snippets))
}
