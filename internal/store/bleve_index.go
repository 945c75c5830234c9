package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// BleveIndex is a LexicalIndex over bleve. Documents are keyed by their
// decimal corpus position.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

type bleveDoc struct {
	Text string `json:"text"`
}

// OpenBleveIndex opens the index at path, creating it when absent. An empty
// path gives an in-memory index. A corrupt on-disk index is removed and
// recreated empty; the caller must rebuild it.
func OpenBleveIndex(path string) (*BleveIndex, error) {
	m, err := NewCodeMapping()
	if err != nil {
		return nil, err
	}

	if path == "" {
		idx, err := bleve.NewMemOnly(m)
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		return &BleveIndex{index: idx}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	if verr := checkBleveMeta(path); verr != nil {
		slog.Warn("lexical_index_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("remove corrupt index %s: %w", path, err)
		}
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, m)
	}
	if err != nil {
		return nil, fmt.Errorf("open lexical index %s: %w", path, err)
	}
	return &BleveIndex{index: idx, path: path}, nil
}

// checkBleveMeta reports an index directory whose metadata is missing or unreadable.
func checkBleveMeta(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json corrupt: %w", err)
	}
	return nil
}

func (b *BleveIndex) Index(ctx context.Context, docs []LexicalDoc) error {
	if len(docs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(strconv.Itoa(d.Position), bleveDoc{Text: d.Text}); err != nil {
			return fmt.Errorf("index position %d: %w", d.Position, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

// Search ranks documents by BM25 over the analyzed query terms (OR semantics).
func (b *BleveIndex) Search(ctx context.Context, query string, k int) ([]LexicalHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(query) == "" || k <= 0 {
		return []LexicalHit{}, nil
	}

	q := bleve.NewMatchQuery(query)
	q.SetField(textField)
	q.Analyzer = CodeAnalyzerName

	req := bleve.NewSearchRequest(q)
	req.Size = k

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	hits := make([]LexicalHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		pos, err := strconv.Atoi(h.ID)
		if err != nil {
			continue
		}
		hits = append(hits, LexicalHit{Position: pos, Score: h.Score})
	}
	return hits, nil
}

func (b *BleveIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	n, _ := b.index.DocCount()
	return int(n)
}

func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

var _ LexicalIndex = (*BleveIndex)(nil)
