package search

import (
	"fmt"
	"path/filepath"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/store"
)

// VectorDir is where the local HNSW backend keeps one graph per collection.
func VectorDir(cfg *config.Config) string {
	return filepath.Join(cfg.DataRoot, store.VectorDir)
}

// OpenVectorIndex returns the configured dense backend.
func OpenVectorIndex(cfg *config.Config) (store.VectorIndex, error) {
	switch cfg.Retrieval.DenseBackend {
	case "hnsw":
		return store.NewHNSWStore(VectorDir(cfg), cfg.Embeddings.Dimensions), nil
	case "qdrant", "":
		return store.NewQdrantStore(cfg.Qdrant.Addr, cfg.Qdrant.APIKey, cfg.Embeddings.Dimensions)
	default:
		return nil, fmt.Errorf("unknown dense backend %q", cfg.Retrieval.DenseBackend)
	}
}
