package preflight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/Aman-CERP/coderag/internal/store"
)

// CheckEmbeddings probes the query embedder. Search falls back to the
// lexical channel without it, so a failure only warns.
func (c *Checker) CheckEmbeddings(ctx context.Context) CheckResult {
	e := c.cfg.Embeddings
	if e.Provider == "ollama" {
		return c.checkOllama(ctx, "embeddings", e.OllamaHost, e.Model)
	}
	return checkAPIKey("embeddings", e.Provider, e.Model, e.APIKey)
}

// CheckGeneration probes the generator used for expansion and answers.
func (c *Checker) CheckGeneration(ctx context.Context) CheckResult {
	g := c.cfg.Generation
	if g.Provider == "ollama" {
		return c.checkOllama(ctx, "generation", g.OllamaHost, g.Model)
	}
	return checkAPIKey("generation", g.Provider, g.Model, g.APIKey)
}

// CheckReranker checks that the cross-encoder endpoint answers HTTP. Any
// status counts; only a transport error warns.
func (c *Checker) CheckReranker(ctx context.Context) CheckResult {
	result := CheckResult{Name: "reranker"}
	r := c.cfg.Rerank
	if r.Backend != "http" {
		result.Status = StatusPass
		result.Message = "disabled (ranking by fusion score and bonuses)"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.Endpoint, nil)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("invalid endpoint %q: %v", r.Endpoint, err)
		return result
	}
	resp, err := c.client.Do(req)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("not reachable at %s", r.Endpoint)
		result.Details = err.Error()
		return result
	}
	_ = resp.Body.Close()

	result.Status = StatusPass
	result.Message = fmt.Sprintf("reachable at %s", r.Endpoint)
	return result
}

// CheckQdrant dials the Qdrant gRPC port when it is the dense backend.
func (c *Checker) CheckQdrant(ctx context.Context) CheckResult {
	result := CheckResult{Name: "qdrant"}
	if c.cfg.Retrieval.DenseBackend != "qdrant" {
		result.Status = StatusPass
		result.Message = fmt.Sprintf("not used (dense backend %s)", c.cfg.Retrieval.DenseBackend)
		return result
	}

	addr := c.cfg.Qdrant.Addr
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, err := c.dial(ctx, "tcp", addr)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("not reachable at %s (search runs lexical-only)", addr)
		result.Details = err.Error()
		return result
	}
	_ = conn.Close()

	result.Status = StatusPass
	result.Message = fmt.Sprintf("reachable at %s", addr)
	return result
}

// CheckIndexes reports one result per repo: built, locked or missing.
func (c *Checker) CheckIndexes() []CheckResult {
	names := c.cfg.RepoNames()
	if len(names) == 0 {
		names = []string{c.cfg.FallbackRepo()}
	}

	results := make([]CheckResult, 0, len(names))
	for _, name := range names {
		dir := c.cfg.DataDirFor(name)
		result := CheckResult{Name: "index:" + name, Details: dir}

		m, err := store.ReadManifest(dir)
		switch {
		case err == nil:
			result.Status = StatusPass
			result.Message = fmt.Sprintf("%d snippets, %d cards, %d vectors (built %s)",
				m.Snippets, m.Cards, m.Vectors, m.BuiltAt.Format("2006-01-02 15:04"))
		case errors.Is(err, os.ErrNotExist) && store.IndexLocked(dir):
			result.Status = StatusWarn
			result.Message = "build in progress"
		case errors.Is(err, os.ErrNotExist):
			result.Status = StatusWarn
			result.Message = "not built; run 'coderag index " + name + "'"
		default:
			result.Status = StatusWarn
			result.Message = err.Error()
		}
		results = append(results, result)
	}
	return results
}

func (c *Checker) checkOllama(ctx context.Context, name, host, model string) CheckResult {
	result := CheckResult{Name: name}

	models, err := c.ollamaModels(ctx, host)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Ollama not reachable at %s", host)
		result.Details = err.Error()
		return result
	}
	if !hasModel(models, model) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("model %s not pulled", model)
		result.Details = "Run 'ollama pull " + model + "'"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("ollama %s ready", model)
	return result
}

func (c *Checker) ollamaModels(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(host, "/")+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, len(body.Models))
	for i, m := range body.Models {
		names[i] = m.Name
	}
	return names, nil
}

// hasModel matches the exact tag, or the base name when either side omits
// the tag ("nomic-embed-text" matches "nomic-embed-text:latest").
func hasModel(models []string, model string) bool {
	want := strings.ToLower(model)
	wantBase, _, wantTagged := strings.Cut(want, ":")
	for _, m := range models {
		have := strings.ToLower(m)
		if have == want {
			return true
		}
		haveBase, _, haveTagged := strings.Cut(have, ":")
		if haveBase == wantBase && (!wantTagged || !haveTagged) {
			return true
		}
	}
	return false
}

func checkAPIKey(name, provider, model, key string) CheckResult {
	result := CheckResult{Name: name}
	if key == "" {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s API key not set", provider)
		result.Details = "Set " + strings.ToUpper(provider) + "_API_KEY"
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s %s configured", provider, model)
	return result
}
