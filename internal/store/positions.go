package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PositionMap resolves lexical corpus positions to snippet ids. It is written
// next to the lexical index at build time and must be reloaded with it.
type PositionMap struct {
	ids []string
}

// NewPositionMap wraps ids, where ids[pos] is the snippet at pos.
func NewPositionMap(ids []string) *PositionMap {
	return &PositionMap{ids: ids}
}

// LoadPositionMap reads a JSON array of ids.
func LoadPositionMap(path string) (*PositionMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &PositionMap{ids: ids}, nil
}

// Save writes the map atomically.
func (m *PositionMap) Save(path string) error {
	data, err := json.Marshal(m.ids)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Resolve returns the id at pos.
func (m *PositionMap) Resolve(pos int) (string, bool) {
	if m == nil || pos < 0 || pos >= len(m.ids) {
		return "", false
	}
	return m.ids[pos], true
}

// Len is the number of positions.
func (m *PositionMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.ids)
}
