package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.DataRoot = filepath.Join(t.TempDir(), ".coderag")
	cfg.Retrieval.DenseBackend = "hnsw"
	cfg.Rerank.Backend = "none"
	cfg.Repos = []config.RepoConfig{{Name: "api"}}
	cfg.DefaultRepo = "api"
	return cfg
}

func ollamaServer(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		type model struct {
			Name string `json:"name"`
		}
		body := struct {
			Models []model `json:"models"`
		}{}
		for _, m := range models {
			body.Models = append(body.Models, model{Name: m})
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
		{CheckStatus(9), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_JSONStatusByName(t *testing.T) {
	// Given: a warning result
	r := CheckResult{Name: "qdrant", Status: StatusWarn, Message: "down"}

	// When: encoding it
	data, err := json.Marshal(r)

	// Then: the status is a lowercase name
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"warn"`)
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		expected bool
	}{
		{"required pass is not critical", CheckResult{Status: StatusPass, Required: true}, false},
		{"required fail is critical", CheckResult{Status: StatusFail, Required: true}, true},
		{"optional fail is not critical", CheckResult{Status: StatusFail}, false},
		{"required warn is not critical", CheckResult{Status: StatusWarn, Required: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsCritical())
		})
	}
}

func TestChecker_SummaryStatus(t *testing.T) {
	checker := New(testConfig(t))

	tests := []struct {
		name     string
		results  []CheckResult
		expected string
	}{
		{"all pass", []CheckResult{{Status: StatusPass}, {Status: StatusPass}}, "ready"},
		{"with warnings", []CheckResult{{Status: StatusPass}, {Status: StatusWarn}}, "ready_with_warnings"},
		{"with critical failure", []CheckResult{{Status: StatusWarn}, {Status: StatusFail, Required: true}}, "failed"},
		{"with optional failure", []CheckResult{{Status: StatusFail}}, "ready_with_warnings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, checker.SummaryStatus(tt.results))
			assert.Equal(t, tt.expected == "failed", checker.HasCriticalFailures(tt.results))
		})
	}
}

func TestChecker_CheckConfig(t *testing.T) {
	// Given: a valid config and a broken one
	good := testConfig(t)
	bad := testConfig(t)
	bad.Retrieval.DenseBackend = "faiss"

	// When: checking both
	okResult := New(good).CheckConfig()
	badResult := New(bad).CheckConfig()

	// Then: the broken one is a critical failure naming the field
	assert.Equal(t, StatusPass, okResult.Status)
	assert.Contains(t, okResult.Message, "default api")
	assert.True(t, badResult.IsCritical())
	assert.Contains(t, badResult.Message, "dense_backend")
}

func TestChecker_CheckDiskSpace_MissingPathUsesParent(t *testing.T) {
	// Given: a data root that does not exist yet
	path := filepath.Join(t.TempDir(), "not", "yet")

	// When: checking disk space
	result := New(testConfig(t)).CheckDiskSpace(path)

	// Then: the parent filesystem is measured
	assert.Equal(t, "disk_space", result.Name)
	assert.NotEqual(t, StatusFail, result.Status, result.Message)
	assert.Contains(t, result.Message, "free")
}

func TestChecker_CheckWritePermissions(t *testing.T) {
	t.Run("creates the data root", func(t *testing.T) {
		// Given: a missing directory
		dir := filepath.Join(t.TempDir(), "data")

		// When: checking write permissions
		result := New(testConfig(t)).CheckWritePermissions(dir)

		// Then: it passes and leaves no probe file behind
		assert.Equal(t, StatusPass, result.Status)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("read-only directory fails", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		dir := filepath.Join(t.TempDir(), "readonly")
		require.NoError(t, os.Mkdir(dir, 0o555))
		t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

		result := New(testConfig(t)).CheckWritePermissions(dir)

		assert.True(t, result.IsCritical())
		assert.Contains(t, result.Message, "permission denied")
	})
}

func TestChecker_CheckEmbeddings_Ollama(t *testing.T) {
	tests := []struct {
		name    string
		models  []string
		model   string
		status  CheckStatus
		message string
	}{
		{"exact tag", []string{"nomic-embed-text:latest"}, "nomic-embed-text:latest", StatusPass, "ready"},
		{"untagged config", []string{"nomic-embed-text:latest"}, "nomic-embed-text", StatusPass, "ready"},
		{"other tag", []string{"nomic-embed-text:v1"}, "nomic-embed-text:v2", StatusWarn, "not pulled"},
		{"missing model", []string{"llama3.1:8b"}, "nomic-embed-text", StatusWarn, "not pulled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: an Ollama server with some models
			srv := ollamaServer(t, tt.models...)
			cfg := testConfig(t)
			cfg.Embeddings.OllamaHost = srv.URL
			cfg.Embeddings.Model = tt.model

			// When: checking embeddings
			result := New(cfg).CheckEmbeddings(context.Background())

			// Then: the model match decides the status
			assert.Equal(t, tt.status, result.Status)
			assert.Contains(t, result.Message, tt.message)
			assert.False(t, result.Required)
		})
	}
}

func TestChecker_CheckGeneration_OllamaDown(t *testing.T) {
	// Given: an Ollama host nothing listens on
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()
	cfg := testConfig(t)
	cfg.Generation.OllamaHost = host

	// When: checking generation
	result := New(cfg, WithTimeout(time.Second)).CheckGeneration(context.Background())

	// Then: it warns with the host
	assert.Equal(t, StatusWarn, result.Status)
	assert.Contains(t, result.Message, "not reachable at "+host)
}

func TestChecker_CheckGeneration_APIKey(t *testing.T) {
	// Given: a hosted provider without and with a key
	cfg := testConfig(t)
	cfg.Generation.Provider = "anthropic"
	cfg.Generation.Model = "claude-3-5-haiku-latest"

	// When: checking before and after setting the key
	missing := New(cfg).CheckGeneration(context.Background())
	cfg.Generation.APIKey = "sk-test"
	present := New(cfg).CheckGeneration(context.Background())

	// Then: only the missing key warns
	assert.Equal(t, StatusWarn, missing.Status)
	assert.Equal(t, "Set ANTHROPIC_API_KEY", missing.Details)
	assert.Equal(t, StatusPass, present.Status)
	assert.Contains(t, present.Message, "claude-3-5-haiku-latest")
}

func TestChecker_CheckReranker(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		result := New(testConfig(t)).CheckReranker(context.Background())
		assert.Equal(t, StatusPass, result.Status)
		assert.Contains(t, result.Message, "disabled")
	})

	t.Run("any HTTP response counts", func(t *testing.T) {
		// Given: an endpoint that only accepts POST
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusMethodNotAllowed)
		}))
		defer srv.Close()
		cfg := testConfig(t)
		cfg.Rerank.Backend = "http"
		cfg.Rerank.Endpoint = srv.URL

		// When: probing
		result := New(cfg).CheckReranker(context.Background())

		// Then: it is reachable
		assert.Equal(t, StatusPass, result.Status)
	})
}

func TestChecker_CheckQdrant(t *testing.T) {
	t.Run("hnsw backend skips", func(t *testing.T) {
		result := New(testConfig(t)).CheckQdrant(context.Background())
		assert.Equal(t, StatusPass, result.Status)
		assert.Contains(t, result.Message, "hnsw")
	})

	t.Run("listening port passes", func(t *testing.T) {
		// Given: a TCP listener standing in for Qdrant
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer func() { _ = ln.Close() }()
		cfg := testConfig(t)
		cfg.Retrieval.DenseBackend = "qdrant"
		cfg.Qdrant.Addr = ln.Addr().String()

		// When: probing
		result := New(cfg).CheckQdrant(context.Background())

		// Then: it is reachable
		assert.Equal(t, StatusPass, result.Status)
	})

	t.Run("dial failure warns", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Retrieval.DenseBackend = "qdrant"
		dial := func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		}

		result := New(cfg, WithDialer(dial)).CheckQdrant(context.Background())

		assert.Equal(t, StatusWarn, result.Status)
		assert.Contains(t, result.Message, "lexical-only")
		assert.Equal(t, "connection refused", result.Details)
	})
}

func TestChecker_CheckIndexes(t *testing.T) {
	// Given: two repos, one built
	cfg := testConfig(t)
	cfg.Repos = append(cfg.Repos, config.RepoConfig{Name: "web"})
	require.NoError(t, store.WriteManifest(cfg.DataDirFor("api"), store.Manifest{
		Repo:     "api",
		BuiltAt:  time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Snippets: 12,
		Cards:    4,
	}))

	// When: checking indexes
	results := New(cfg).CheckIndexes()

	// Then: one result per repo
	require.Len(t, results, 2)
	assert.Equal(t, "index:api", results[0].Name)
	assert.Equal(t, StatusPass, results[0].Status)
	assert.Contains(t, results[0].Message, "12 snippets, 4 cards, 0 vectors")
	assert.Equal(t, "index:web", results[1].Name)
	assert.Equal(t, StatusWarn, results[1].Status)
	assert.Contains(t, results[1].Message, "coderag index web")
}

func TestChecker_RunAll(t *testing.T) {
	// Given: a config whose services all answer
	srv := ollamaServer(t, "nomic-embed-text:latest", "llama3.1:8b")
	cfg := testConfig(t)
	cfg.Embeddings.OllamaHost = srv.URL
	cfg.Generation.OllamaHost = srv.URL
	buf := &bytes.Buffer{}
	checker := New(cfg, WithOutput(buf), WithVerbose(true))

	// When: running every check
	results := checker.RunAll(context.Background())
	checker.PrintResults(results)

	// Then: every check is present and only the unbuilt index warns
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	assert.Equal(t, []string{
		"config", "disk_space", "write_permissions", "file_descriptors",
		"embeddings", "generation", "reranker", "qdrant", "index:api",
	}, names)
	assert.False(t, checker.HasCriticalFailures(results))

	out := buf.String()
	assert.Contains(t, out, "coderag doctor")
	assert.Contains(t, out, "[WARN] index:api")
	assert.Contains(t, out, cfg.DataDirFor("api"))
}
