// Package store holds the snippet model and the index backends the
// retrieval pipeline queries: lexical (bleve or SQLite FTS5) and vector
// (Qdrant or a local HNSW graph).
package store

import (
	"context"
	"fmt"
)

// Origin values carried on snippets.
const (
	OriginFirstParty = "first_party"
	OriginVendor     = "vendor"
)

// Snippet is one indexed unit of source code. ID and Hash stay stable across
// re-indexing unless Code changes. Code may be empty until hydrated.
type Snippet struct {
	ID        string   `json:"id"`
	FilePath  string   `json:"file_path"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Language  string   `json:"language"`
	Layer     string   `json:"layer"`
	Origin    string   `json:"origin"`
	Repo      string   `json:"repo"`
	Hash      string   `json:"hash"`
	Code      string   `json:"code,omitempty"`
	Symbols   []string `json:"symbols,omitempty"`
	Imports   []string `json:"imports,omitempty"`
}

// Span identifies a snippet by location; two snippets with the same span are duplicates.
type Span struct {
	FilePath  string
	StartLine int
	EndLine   int
}

func (s Snippet) Span() Span {
	return Span{FilePath: s.FilePath, StartLine: s.StartLine, EndLine: s.EndLine}
}

// Citation renders the span as file:start-end.
func (s Snippet) Citation() string {
	return fmt.Sprintf("%s:%d-%d", s.FilePath, s.StartLine, s.EndLine)
}

// Meta returns the snippet without its body, as stored in vector payloads.
func (s Snippet) Meta() Snippet {
	s.Code = ""
	s.Symbols = nil
	s.Imports = nil
	return s
}

// LexicalDoc is one document in a lexical index, addressed by its position
// in the snippet stream.
type LexicalDoc struct {
	Position int
	Text     string
}

// LexicalHit is a lexical match by corpus position.
type LexicalHit struct {
	Position int
	Score    float64
}

// LexicalIndex is a token-overlap index over LexicalDocs.
type LexicalIndex interface {
	Index(ctx context.Context, docs []LexicalDoc) error
	Search(ctx context.Context, query string, k int) ([]LexicalHit, error)
	Count() int
	Close() error
}

// VectorPoint is a snippet embedding with its restricted payload.
type VectorPoint struct {
	ID     string
	Vector []float32
	Meta   Snippet
}

// VectorHit is a nearest-neighbour match. Meta never carries Code.
type VectorHit struct {
	ID    string
	Score float32
	Meta  Snippet
}

// VectorIndex is a nearest-neighbour index partitioned by collection.
type VectorIndex interface {
	Upsert(ctx context.Context, collection string, points []VectorPoint) error
	Search(ctx context.Context, collection string, vector []float32, k int) ([]VectorHit, error)
	Close() error
}

// ErrDimensionMismatch reports a vector of the wrong size.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
