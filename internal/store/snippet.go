package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// File names inside a repo data directory.
const (
	SnippetsFile      = "chunks.jsonl"
	CardsFile         = "cards.jsonl"
	PositionsFile     = "sparse_ids.json"
	CardPositionsFile = "cards_ids.json"
	SparseDir         = "sparse.bleve"
	SparseDB          = "sparse.db"
	CardsDir          = "cards.bleve"
	VectorDir         = "vectors"
	LockFile          = ".index.lock"
	// ManifestFile is written last by a successful index build.
	ManifestFile = "manifest.json"
)

const maxLineBytes = 16 * 1024 * 1024

// snippetRecord accepts the field aliases older indexers emit.
type snippetRecord struct {
	Snippet
	Text string `json:"text"`
	Path string `json:"path"`
}

// ScanSnippets calls fn for every record in r, in stream order. Blank lines
// are skipped; a malformed line stops the scan with its line number.
func ScanSnippets(r io.Reader, fn func(pos int, s Snippet) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	line, pos := 0, 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec snippetRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		s := rec.Snippet
		if s.Code == "" {
			s.Code = rec.Text
		}
		if s.FilePath == "" {
			s.FilePath = rec.Path
		}
		if s.ID == "" {
			s.ID = s.Hash
		}
		if err := fn(pos, s); err != nil {
			return err
		}
		pos++
	}
	return sc.Err()
}

// ScanSnippetsFile opens path and runs ScanSnippets over it.
func ScanSnippetsFile(path string, fn func(pos int, s Snippet) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := ScanSnippets(f, fn); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadSnippets reads every record in path.
func LoadSnippets(path string) ([]Snippet, error) {
	var out []Snippet
	err := ScanSnippetsFile(path, func(_ int, s Snippet) error {
		out = append(out, s)
		return nil
	})
	return out, err
}

// WriteSnippets writes snippets as JSON lines.
func WriteSnippets(w io.Writer, snippets []Snippet) error {
	enc := json.NewEncoder(w)
	for _, s := range snippets {
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
	return nil
}

// LexicalText builds the lexical document for s: symbol names repeated three
// times for weight, then import and reference tokens, then the body. The
// result must be analyzed with Analyze at index and query time alike.
func LexicalText(s Snippet) string {
	var sb strings.Builder
	names := strings.Join(s.Symbols, " ")
	for i := 0; i < 3 && names != ""; i++ {
		sb.WriteString(names)
		sb.WriteByte('\n')
	}
	if len(s.Imports) > 0 {
		sb.WriteString(strings.Join(s.Imports, " "))
		sb.WriteByte('\n')
	}
	sb.WriteString(s.FilePath)
	sb.WriteByte('\n')
	sb.WriteString(s.Code)
	return sb.String()
}
