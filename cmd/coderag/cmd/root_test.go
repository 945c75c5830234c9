package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/coderag/internal/config"
)

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	// Given
	root := NewRootCmd()

	// When
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	// Then
	for _, want := range []string{"search", "ask", "chat", "serve", "index", "eval", "status", "stats", "doctor", "config", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("project"))
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
}

func TestLoadConfig_ReadsProjectFile(t *testing.T) {
	// Given
	root := newTestProject(t)

	// When
	cfg, gotRoot, err := loadConfig()

	// Then
	require.NoError(t, err)
	assert.Equal(t, root, gotRoot)
	assert.Equal(t, "demo", cfg.DefaultRepo)
	assert.Equal(t, []string{"demo", "web"}, cfg.RepoNames())
	assert.Equal(t, "hnsw", cfg.Retrieval.DenseBackend)
}

func TestResolveRepoAndRepoNames(t *testing.T) {
	cfg := config.NewConfig()
	assert.Equal(t, config.GlobalDefaultRepo, resolveRepo(cfg, ""))
	assert.Equal(t, "web", resolveRepo(cfg, "web"))
	assert.Equal(t, []string{config.GlobalDefaultRepo}, repoNames(cfg))

	cfg.Repos = []config.RepoConfig{{Name: "api"}, {Name: "web"}}
	assert.Equal(t, []string{"api", "web"}, repoNames(cfg))
}

func TestIndexTargets(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Repos = []config.RepoConfig{{Name: "api"}, {Name: "web"}}
	cfg.DefaultRepo = "api"

	assert.Equal(t, []string{"api"}, indexTargets(cfg, nil, false))
	assert.Equal(t, []string{"web"}, indexTargets(cfg, []string{"web"}, false))
	assert.Equal(t, []string{"api", "web"}, indexTargets(cfg, []string{"web"}, true))
}
