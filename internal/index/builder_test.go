package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Aman-CERP/coderag/internal/errors"
	"github.com/Aman-CERP/coderag/internal/search"
	"github.com/Aman-CERP/coderag/internal/store"
	"github.com/Aman-CERP/coderag/internal/ui"
)

func newTestBuilder(t *testing.T, deps BuilderDependencies) (*Builder, *MockRenderer) {
	t.Helper()
	r := &MockRenderer{}
	deps.Renderer = r
	b, err := NewBuilder(deps)
	require.NoError(t, err)
	return b, r
}

func TestNewBuilder_RequiresRendererAndConfig(t *testing.T) {
	_, err := NewBuilder(BuilderDependencies{})
	assert.Error(t, err)

	_, err = NewBuilder(BuilderDependencies{Renderer: &MockRenderer{}})
	assert.Error(t, err)
}

func TestBuilder_BuildWritesEveryArtifact(t *testing.T) {
	// Given: two snippets, pattern cards and a local vector store
	cfg := testConfig(t, testSnippets())
	vectors := store.NewHNSWStore(search.VectorDir(cfg), 3)
	embedder := &fakeEmbedder{}
	b, r := newTestBuilder(t, BuilderDependencies{Config: cfg, Embedder: embedder, Vectors: vectors})

	// When
	res, err := b.Build(context.Background(), "demo")

	// Then
	require.NoError(t, err)
	dir := cfg.DataDirFor("demo")
	assert.Equal(t, 2, res.Manifest.Snippets)
	assert.Equal(t, 2, res.Manifest.Cards)
	assert.Equal(t, 2, res.Manifest.Vectors)
	assert.Equal(t, "bleve", res.Manifest.Sparse)
	assert.Equal(t, "hnsw", res.Manifest.Dense)
	assert.Equal(t, "fake-embed", res.Manifest.Model)
	assert.Equal(t, 3, res.Manifest.Dimensions)
	assert.Equal(t, 2, embedder.calls, "batch size 1 embeds one snippet per call")

	for _, name := range []string{store.SparseDir, store.PositionsFile, store.CardsFile, store.CardsDir, store.CardPositionsFile, store.ManifestFile} {
		assert.FileExists(t, filepath.Join(dir, name)+suffixFor(name), name)
	}
	assert.NoDirExists(t, filepath.Join(dir, store.SparseDir+".building"))

	m, err := store.ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "demo", m.Repo)

	reloaded := store.NewHNSWStore(search.VectorDir(cfg), 3)
	assert.Equal(t, 2, reloaded.Count(cfg.CollectionFor("demo")))

	assert.True(t, r.CompleteCalled)
	assert.Equal(t, 2, r.CompletionStats.Snippets)
	assert.Equal(t, ui.StageComplete, r.ProgressEvents[len(r.ProgressEvents)-1].Stage)
	assert.False(t, store.IndexLocked(dir), "lock released after build")
}

// suffixFor points FileExists at a file inside bleve directories.
func suffixFor(name string) string {
	if name == store.SparseDir || name == store.CardsDir {
		return "/index_meta.json"
	}
	return ""
}

func TestBuilder_BuildIsSearchable(t *testing.T) {
	// Given
	cfg := testConfig(t, testSnippets())
	b, _ := newTestBuilder(t, BuilderDependencies{Config: cfg})
	_, err := b.Build(context.Background(), "demo")
	require.NoError(t, err)

	// When: the built repo is opened the way the search path opens it
	ri, err := search.OpenRepoIndex(cfg, "demo")
	require.NoError(t, err)
	defer ri.Close()

	// Then
	hits, err := ri.Sparse.Search(context.Background(), "send fax", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	id, ok := ri.Positions.Resolve(hits[0].Position)
	require.True(t, ok)
	assert.Equal(t, "s1", id)
}

func TestBuilder_RebuildReplacesIndex(t *testing.T) {
	// Given: a built repo whose snippets then shrink to one
	cfg := testConfig(t, testSnippets())
	b, _ := newTestBuilder(t, BuilderDependencies{Config: cfg})
	_, err := b.Build(context.Background(), "demo")
	require.NoError(t, err)
	writeTestSnippets(t, cfg.DataDirFor("demo"), testSnippets()[1:])
	require.NoError(t, os.Remove(filepath.Join(cfg.DataDirFor("demo"), store.CardsFile)))

	// When
	res, err := b.Build(context.Background(), "demo")

	// Then
	require.NoError(t, err)
	assert.Equal(t, 1, res.Manifest.Snippets)
	positions, err := store.LoadPositionMap(filepath.Join(cfg.DataDirFor("demo"), store.PositionsFile))
	require.NoError(t, err)
	assert.Equal(t, 1, positions.Len())
}

func TestBuilder_LockedRepoFails(t *testing.T) {
	// Given: another holder of the repo lock
	cfg := testConfig(t, testSnippets())
	other := store.NewIndexLock(cfg.DataDirFor("demo"))
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer other.Unlock()
	b, _ := newTestBuilder(t, BuilderDependencies{Config: cfg})

	// When
	_, err = b.Build(context.Background(), "demo")

	// Then
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeIndexLocked, cerrors.Code(err))
	assert.NoFileExists(t, filepath.Join(cfg.DataDirFor("demo"), store.ManifestFile))
}

func TestBuilder_MissingOrEmptySnippets(t *testing.T) {
	// Given: no snippets file at all
	cfg := testConfig(t, nil)
	b, _ := newTestBuilder(t, BuilderDependencies{Config: cfg})

	// When
	_, err := b.Build(context.Background(), "demo")

	// Then
	assert.Equal(t, cerrors.ErrCodeSnippetsMissing, cerrors.Code(err))

	// Given: an empty snippets file
	writeTestSnippets(t, cfg.DataDirFor("demo"), nil)

	// When
	_, err = b.Build(context.Background(), "demo")

	// Then
	assert.Equal(t, cerrors.ErrCodeSnippetsMissing, cerrors.Code(err))
	assert.NoFileExists(t, filepath.Join(cfg.DataDirFor("demo"), store.ManifestFile))
}

func TestBuilder_EmbedFailureDegradesBuild(t *testing.T) {
	// Given: an embedder that always fails
	cfg := testConfig(t, testSnippets())
	vectors := store.NewHNSWStore("", 3)
	b, r := newTestBuilder(t, BuilderDependencies{
		Config:   cfg,
		Embedder: &fakeEmbedder{err: errors.New("connection refused")},
		Vectors:  vectors,
	})

	// When
	res, err := b.Build(context.Background(), "demo")

	// Then: lexical artifacts and manifest exist, the error is reported
	require.NoError(t, err)
	assert.Equal(t, 0, res.Manifest.Vectors)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, r.ErrorEvents, 1)
	assert.Equal(t, cerrors.ErrCodeEmbedderUnavailable, cerrors.Code(r.ErrorEvents[0].Err))
	assert.FileExists(t, filepath.Join(cfg.DataDirFor("demo"), store.ManifestFile))
}

func TestBuilder_NoEmbedderSkipsDense(t *testing.T) {
	cfg := testConfig(t, testSnippets())
	b, r := newTestBuilder(t, BuilderDependencies{Config: cfg})

	res, err := b.Build(context.Background(), "demo")

	require.NoError(t, err)
	assert.Equal(t, "none", res.Manifest.Dense)
	assert.Empty(t, res.Manifest.Model)
	assert.Equal(t, 1, res.Warnings)
	assert.True(t, r.ErrorEvents[0].IsWarn)
}

func TestBuilder_ExistingCardsModeDoesNotGenerate(t *testing.T) {
	// Given: no cards.jsonl and cards mode "existing"
	cfg := testConfig(t, testSnippets())
	cfg.Index.Cards = "existing"
	b, _ := newTestBuilder(t, BuilderDependencies{Config: cfg})

	// When
	res, err := b.Build(context.Background(), "demo")

	// Then: no cards index, a warning instead
	require.NoError(t, err)
	assert.Equal(t, 0, res.Manifest.Cards)
	assert.NoFileExists(t, filepath.Join(cfg.DataDirFor("demo"), store.CardsFile))
	assert.NoDirExists(t, filepath.Join(cfg.DataDirFor("demo"), store.CardsDir))
}

func TestBuilder_CardGeneratorErrorFailsBuild(t *testing.T) {
	cfg := testConfig(t, testSnippets())
	b, _ := newTestBuilder(t, BuilderDependencies{Config: cfg, Cards: failingCards{}})

	_, err := b.Build(context.Background(), "demo")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model offline")
	assert.NoFileExists(t, filepath.Join(cfg.DataDirFor("demo"), store.ManifestFile))
}

func TestBuilder_CanceledContext(t *testing.T) {
	cfg := testConfig(t, testSnippets())
	cfg.Index.Enrich = true
	b, _ := newTestBuilder(t, BuilderDependencies{Config: cfg})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Build(ctx, "demo")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedText_PrefixesPathAndTruncates(t *testing.T) {
	s := store.Snippet{FilePath: "a/b.go", Code: "func B() {}"}
	assert.Equal(t, "a/b.go\nfunc B() {}", embedText(s))

	long := store.Snippet{FilePath: "x.go", Code: string(make([]byte, maxEmbedChars*2))}
	assert.Len(t, embedText(long), maxEmbedChars)
}
