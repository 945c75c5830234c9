// Package preflight checks that coderag can serve a project before a user
// relies on it.
//
// The checker covers the host (disk space, write access to the data root,
// file descriptor limit), the configured model and vector services
// (Ollama tags, API keys, the reranker endpoint, the Qdrant gRPC port)
// and the per-repo index manifests.
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to continue
//	}
package preflight
