package store

import "fmt"

// Catalog holds body-less snippet metadata by id and by corpus position.
// Sparse hits only carry positions, so the catalog supplies the rest.
type Catalog struct {
	byID  map[string]Snippet
	order []string
}

// NewCatalog indexes snippets in stream order.
func NewCatalog(snippets []Snippet) *Catalog {
	c := &Catalog{byID: make(map[string]Snippet, len(snippets)), order: make([]string, 0, len(snippets))}
	for _, s := range snippets {
		c.add(s)
	}
	return c
}

func (c *Catalog) add(s Snippet) {
	c.byID[s.ID] = s.Meta()
	c.order = append(c.order, s.ID)
}

// LoadCatalog reads metadata from a chunks.jsonl file, dropping bodies.
func LoadCatalog(path string) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Snippet)}
	err := ScanSnippetsFile(path, func(_ int, s Snippet) error {
		c.add(s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return c, nil
}

// Get returns the metadata for id.
func (c *Catalog) Get(id string) (Snippet, bool) {
	if c == nil {
		return Snippet{}, false
	}
	s, ok := c.byID[id]
	return s, ok
}

// IDs returns snippet ids in stream order, matching lexical positions.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len is the number of snippets.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}
