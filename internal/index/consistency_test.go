package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/coderag/internal/search"
	"github.com/Aman-CERP/coderag/internal/store"
)

func typesOf(res *CheckResult) []InconsistencyType {
	var out []InconsistencyType
	for _, inc := range res.Inconsistencies {
		out = append(out, inc.Type)
	}
	return out
}

func TestConsistencyChecker_FreshBuildIsConsistent(t *testing.T) {
	// Given: a complete build with vectors
	cfg := testConfig(t, testSnippets())
	vectors := store.NewHNSWStore(search.VectorDir(cfg), 3)
	b, _ := newTestBuilder(t, BuilderDependencies{Config: cfg, Embedder: &fakeEmbedder{}, Vectors: vectors})
	_, err := b.Build(context.Background(), "demo")
	require.NoError(t, err)

	// When
	res, err := NewConsistencyChecker(cfg, store.NewHNSWStore(search.VectorDir(cfg), 3)).Check(context.Background(), "demo")

	// Then
	require.NoError(t, err)
	assert.True(t, res.Consistent(), "%v", res.Inconsistencies)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, "demo", res.Repo)
}

func TestConsistencyChecker_UnbuiltRepo(t *testing.T) {
	cfg := testConfig(t, testSnippets())

	res, err := NewConsistencyChecker(cfg, nil).Check(context.Background(), "demo")

	require.NoError(t, err)
	assert.Equal(t, []InconsistencyType{InconsistencyNotBuilt}, typesOf(res))
}

func TestConsistencyChecker_SnippetsChangedAfterBuild(t *testing.T) {
	// Given: a build, then a new snippet exported afterwards
	cfg := testConfig(t, testSnippets())
	vectors := store.NewHNSWStore(search.VectorDir(cfg), 3)
	b, _ := newTestBuilder(t, BuilderDependencies{Config: cfg, Embedder: &fakeEmbedder{}, Vectors: vectors})
	_, err := b.Build(context.Background(), "demo")
	require.NoError(t, err)

	dir := cfg.DataDirFor("demo")
	grown := append(testSnippets(), store.Snippet{ID: "s3", FilePath: "c.go", Code: "package c"})
	writeTestSnippets(t, dir, grown)
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, store.SnippetsFile), future, future))

	// When
	res, err := NewConsistencyChecker(cfg, store.NewHNSWStore(search.VectorDir(cfg), 3)).Check(context.Background(), "demo")

	// Then
	require.NoError(t, err)
	got := typesOf(res)
	assert.Contains(t, got, InconsistencyStale)
	assert.Contains(t, got, InconsistencyMissingSparse)
	assert.Contains(t, got, InconsistencyVectorCount)
	assert.NotContains(t, got, InconsistencyOrphanSparse)
	for _, inc := range res.Inconsistencies {
		if inc.Type == InconsistencyMissingSparse {
			assert.Equal(t, "s3", inc.SnippetID)
		}
	}
}

func TestConsistencyChecker_OrphansAfterSnippetRemoved(t *testing.T) {
	// Given: a build without vectors, then s1 removed from the snippets
	cfg := testConfig(t, testSnippets())
	b, _ := newTestBuilder(t, BuilderDependencies{Config: cfg})
	_, err := b.Build(context.Background(), "demo")
	require.NoError(t, err)
	writeTestSnippets(t, cfg.DataDirFor("demo"), testSnippets()[1:])

	// When
	res, err := NewConsistencyChecker(cfg, nil).Check(context.Background(), "demo")

	// Then
	require.NoError(t, err)
	got := typesOf(res)
	assert.Contains(t, got, InconsistencyOrphanSparse)
	assert.Contains(t, got, InconsistencyOrphanCard)
	assert.Equal(t, 1, res.Checked)
}

func TestConsistencyChecker_MissingSnippetsErrors(t *testing.T) {
	cfg := testConfig(t, nil)

	_, err := NewConsistencyChecker(cfg, nil).Check(context.Background(), "demo")

	assert.Error(t, err)
}

func TestInconsistencyType_String(t *testing.T) {
	assert.Equal(t, "not_built", InconsistencyNotBuilt.String())
	assert.Equal(t, "vector_count", InconsistencyVectorCount.String())
	assert.Equal(t, "unknown", InconsistencyType(99).String())
}
