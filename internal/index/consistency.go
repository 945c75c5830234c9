package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyNotBuilt means the repo has no manifest.
	InconsistencyNotBuilt InconsistencyType = iota
	// InconsistencyStale means chunks.jsonl changed after the last build.
	InconsistencyStale
	// InconsistencyOrphanSparse is a position map id with no snippet.
	InconsistencyOrphanSparse
	// InconsistencyMissingSparse is a snippet absent from the position map.
	InconsistencyMissingSparse
	// InconsistencySparseCount is a lexical index whose document count
	// differs from its position map.
	InconsistencySparseCount
	// InconsistencyOrphanCard is a card id with no snippet.
	InconsistencyOrphanCard
	// InconsistencyVectorCount is a collection whose size differs from the
	// snippet count.
	InconsistencyVectorCount
)

// String returns a short name for the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyNotBuilt:
		return "not_built"
	case InconsistencyStale:
		return "stale"
	case InconsistencyOrphanSparse:
		return "orphan_sparse"
	case InconsistencyMissingSparse:
		return "missing_sparse"
	case InconsistencySparseCount:
		return "sparse_count"
	case InconsistencyOrphanCard:
		return "orphan_card"
	case InconsistencyVectorCount:
		return "vector_count"
	default:
		return "unknown"
	}
}

// Inconsistency represents one detected issue.
type Inconsistency struct {
	Type      InconsistencyType
	SnippetID string
	Details   string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	Repo string
	// Checked is the number of snippets verified.
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// Consistent reports whether no issues were found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// vectorCounter is implemented by vector backends that can count a collection.
type vectorCounter interface {
	Count(collection string) int
}

// openTimeout bounds opening a lexical index another process may hold.
const openTimeout = 5 * time.Second

// ConsistencyChecker validates a repo's built artifacts against its
// snippets. chunks.jsonl is the source of truth.
type ConsistencyChecker struct {
	cfg     *config.Config
	vectors store.VectorIndex
}

// NewConsistencyChecker creates a checker. vectors may be nil.
func NewConsistencyChecker(cfg *config.Config, vectors store.VectorIndex) *ConsistencyChecker {
	return &ConsistencyChecker{cfg: cfg, vectors: vectors}
}

// Check compares every artifact in the repo's data directory with its
// snippets. Fixing any issue requires a rebuild.
func (c *ConsistencyChecker) Check(ctx context.Context, repo string) (*CheckResult, error) {
	start := time.Now()
	dir := c.cfg.DataDirFor(repo)
	res := &CheckResult{Repo: repo}
	add := func(t InconsistencyType, id, details string) {
		res.Inconsistencies = append(res.Inconsistencies, Inconsistency{Type: t, SnippetID: id, Details: details})
	}

	snippetsPath := filepath.Join(dir, store.SnippetsFile)
	catalog, err := store.LoadCatalog(snippetsPath)
	if err != nil {
		return nil, fmt.Errorf("load snippets: %w", err)
	}
	res.Checked = catalog.Len()

	manifest, err := store.ReadManifest(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		add(InconsistencyNotBuilt, "", "no manifest; run 'coderag index'")
	case err != nil:
		return nil, err
	default:
		if info, err := os.Stat(snippetsPath); err == nil && info.ModTime().After(manifest.BuiltAt) {
			add(InconsistencyStale, "", fmt.Sprintf("%s modified after build at %s", store.SnippetsFile, manifest.BuiltAt.Format(time.RFC3339)))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Lexical positions against the catalog.
	positions, err := store.LoadPositionMap(filepath.Join(dir, store.PositionsFile))
	if err == nil {
		seen := make(map[string]bool, positions.Len())
		for pos := 0; pos < positions.Len(); pos++ {
			id, _ := positions.Resolve(pos)
			seen[id] = true
			if _, ok := catalog.Get(id); !ok {
				add(InconsistencyOrphanSparse, id, fmt.Sprintf("position %d has no snippet", pos))
			}
		}
		for _, id := range catalog.IDs() {
			if !seen[id] {
				add(InconsistencyMissingSparse, id, "snippet missing from lexical index")
			}
		}
		if n, ok := c.lexicalCount(dir); ok && n != positions.Len() {
			add(InconsistencySparseCount, "", fmt.Sprintf("index has %d documents, position map %d", n, positions.Len()))
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	// Card ids must name snippets.
	if cardPositions, err := store.LoadPositionMap(filepath.Join(dir, store.CardPositionsFile)); err == nil {
		for pos := 0; pos < cardPositions.Len(); pos++ {
			id, _ := cardPositions.Resolve(pos)
			if _, ok := catalog.Get(id); !ok {
				add(InconsistencyOrphanCard, id, "card has no snippet")
			}
		}
	}

	if counter, ok := c.vectors.(vectorCounter); ok {
		collection := c.cfg.CollectionFor(repo)
		if n := counter.Count(collection); n != catalog.Len() {
			add(InconsistencyVectorCount, "", fmt.Sprintf("collection %s has %d vectors for %d snippets", collection, n, catalog.Len()))
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}

// lexicalCount opens the configured lexical index read-side and counts its
// documents. It gives up when the index is absent or held by another process.
func (c *ConsistencyChecker) lexicalCount(dir string) (int, bool) {
	path := filepath.Join(dir, store.SparseDir)
	open := func() (store.LexicalIndex, error) { return store.OpenBleveIndex(path) }
	if c.cfg.Retrieval.SparseBackend == "sqlite" {
		path = filepath.Join(dir, store.SparseDB)
		open = func() (store.LexicalIndex, error) { return store.OpenSQLiteIndex(path) }
	}
	if _, err := os.Stat(path); err != nil {
		return 0, false
	}

	type result struct {
		idx store.LexicalIndex
		err error
	}
	done := make(chan result, 1)
	go func() {
		idx, err := open()
		done <- result{idx, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return 0, false
		}
		defer func() { _ = r.idx.Close() }()
		return r.idx.Count(), true
	case <-time.After(openTimeout):
		go func() {
			if r := <-done; r.err == nil {
				_ = r.idx.Close()
			}
		}()
		return 0, false
	}
}
