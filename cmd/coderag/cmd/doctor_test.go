package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctor_JSON(t *testing.T) {
	// Given: a project whose Ollama host is down
	newTestProject(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	t.Setenv("CODERAG_OLLAMA_HOST", srv.URL)

	// When: running doctor with JSON output
	out, err := execute(t, newDoctorCmd(), "--json")

	// Then: only warnings, so no error
	require.NoError(t, err)
	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "ready_with_warnings", report.Status)

	byName := map[string]string{}
	for _, c := range report.Checks {
		byName[c.Name] = c.Status
	}
	assert.Equal(t, "pass", byName["config"])
	assert.Equal(t, "warn", byName["embeddings"])
	assert.Equal(t, "pass", byName["reranker"])
	assert.Equal(t, "pass", byName["qdrant"])
	assert.Equal(t, "warn", byName["index:demo"])
	assert.Equal(t, "warn", byName["index:web"])
}

func TestDoctor_TextAfterIndex(t *testing.T) {
	// Given: a built demo repo
	newTestProject(t)
	t.Setenv("CODERAG_EMBEDDINGS_PROVIDER", "openai")
	t.Setenv("CODERAG_GENERATION_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	_, err := execute(t, newIndexCmd(), "demo", "--plain", "--no-dense", "--cards", "pattern")
	require.NoError(t, err)

	// When: running doctor
	out, err := execute(t, newDoctorCmd())

	// Then: the demo index passes
	require.NoError(t, err)
	assert.Contains(t, out, "[PASS] index:demo: 2 snippets, 2 cards")
	assert.Contains(t, out, "[WARN] index:web")
	assert.Contains(t, out, "Status: READY_WITH_WARNINGS")
}
