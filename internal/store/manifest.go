package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Manifest records what a completed index build produced.
type Manifest struct {
	Repo       string    `json:"repo"`
	BuiltAt    time.Time `json:"built_at"`
	Snippets   int       `json:"snippets"`
	Cards      int       `json:"cards"`
	Vectors    int       `json:"vectors"`
	Sparse     string    `json:"sparse_backend"`
	Dense      string    `json:"dense_backend"`
	Embedder   string    `json:"embedder"`
	Model      string    `json:"model,omitempty"`
	Dimensions int       `json:"dimensions,omitempty"`
	Version    string    `json:"version,omitempty"`
}

// WriteManifest writes m into dir atomically.
func WriteManifest(dir string, m Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, ManifestFile), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
}

// ReadManifest loads the manifest in dir. A missing file is reported with
// os.ErrNotExist so callers can tell "never built" from "corrupt".
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}
	return m, nil
}
