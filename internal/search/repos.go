package search

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Aman-CERP/coderag/internal/config"
	cerrors "github.com/Aman-CERP/coderag/internal/errors"
	"github.com/Aman-CERP/coderag/internal/store"
)

// RepoIndex bundles the read side of one repository's data directory.
// Sparse and Cards are nil when their files are absent; SparseErr says why.
type RepoIndex struct {
	Name       string
	Collection string
	Dir        string

	Sparse    store.LexicalIndex
	Positions *store.PositionMap
	SparseErr error

	Cards         store.LexicalIndex
	CardPositions *store.PositionMap

	Catalog  *store.Catalog
	Hydrator *store.Hydrator
}

// OpenRepoIndex opens whatever exists under the repo's data directory.
// Missing pieces degrade their channel rather than failing the open.
func OpenRepoIndex(cfg *config.Config, repo string) (*RepoIndex, error) {
	dir := cfg.DataDirFor(repo)
	ri := &RepoIndex{Name: repo, Collection: cfg.CollectionFor(repo), Dir: dir}

	snippets := filepath.Join(dir, store.SnippetsFile)
	hyd, err := store.NewHydrator(snippets, cfg.Hydration.Mode, cfg.Hydration.MaxChars, cfg.Hydration.CacheSize)
	if err != nil {
		return nil, err
	}
	ri.Hydrator = hyd

	if catalog, err := store.LoadCatalog(snippets); err == nil {
		ri.Catalog = catalog
	} else if !errors.Is(err, os.ErrNotExist) {
		slog.Warn("catalog_load_failed", slog.String("repo", repo), slog.String("error", err.Error()))
	}

	ri.Sparse, ri.Positions, ri.SparseErr = openLexical(cfg.Retrieval.SparseBackend, dir, store.PositionsFile)
	if ri.SparseErr != nil {
		slog.Warn("sparse_index_unavailable", slog.String("repo", repo), slog.String("error", ri.SparseErr.Error()))
	}

	if cfg.Retrieval.CardsEnabled {
		cards, positions, err := openLexical("bleve", dir, store.CardPositionsFile)
		if err == nil {
			ri.Cards, ri.CardPositions = cards, positions
		}
	}
	return ri, nil
}

func openLexical(backend, dir, positionsFile string) (store.LexicalIndex, *store.PositionMap, error) {
	posPath := filepath.Join(dir, positionsFile)
	if _, err := os.Stat(posPath); err != nil {
		return nil, nil, cerrors.New(cerrors.ErrCodeIndexMissing, "position map not found: "+posPath, err).
			WithSuggestion("run 'coderag index' for this repo")
	}

	var idx store.LexicalIndex
	var err error
	switch {
	case positionsFile == store.CardPositionsFile:
		idx, err = openExisting(filepath.Join(dir, store.CardsDir), func(p string) (store.LexicalIndex, error) {
			return store.OpenBleveIndex(p)
		})
	case backend == "sqlite":
		idx, err = openExisting(filepath.Join(dir, store.SparseDB), func(p string) (store.LexicalIndex, error) {
			return store.OpenSQLiteIndex(p)
		})
	default:
		idx, err = openExisting(filepath.Join(dir, store.SparseDir), func(p string) (store.LexicalIndex, error) {
			return store.OpenBleveIndex(p)
		})
	}
	if err != nil {
		return nil, nil, err
	}

	positions, err := store.LoadPositionMap(posPath)
	if err != nil {
		_ = idx.Close()
		return nil, nil, cerrors.New(cerrors.ErrCodeIndexCorrupt, "position map unreadable", err)
	}
	if positions.Len() != idx.Count() {
		slog.Warn("position_map_mismatch",
			slog.String("dir", dir),
			slog.Int("positions", positions.Len()),
			slog.Int("documents", idx.Count()))
	}
	return idx, positions, nil
}

func openExisting(path string, open func(string) (store.LexicalIndex, error)) (store.LexicalIndex, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, cerrors.New(cerrors.ErrCodeIndexMissing, "lexical index not found: "+path, err)
	}
	idx, err := open(path)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeIndexCorrupt, fmt.Sprintf("open %s", path), err)
	}
	return idx, nil
}

// Close releases the indexes.
func (ri *RepoIndex) Close() error {
	var errs []error
	if ri.Sparse != nil {
		errs = append(errs, ri.Sparse.Close())
	}
	if ri.Cards != nil {
		errs = append(errs, ri.Cards.Close())
	}
	return errors.Join(errs...)
}

// RepoSet opens repo indexes on first use and keeps them until reloaded.
type RepoSet struct {
	cfg  *config.Config
	mu   sync.Mutex
	open map[string]*RepoIndex
}

// NewRepoSet creates an empty set.
func NewRepoSet(cfg *config.Config) *RepoSet {
	return &RepoSet{cfg: cfg, open: make(map[string]*RepoIndex)}
}

// Get returns the open index for repo, opening it if needed.
func (s *RepoSet) Get(repo string) (*RepoIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ri, ok := s.open[repo]; ok {
		return ri, nil
	}
	ri, err := OpenRepoIndex(s.cfg, repo)
	if err != nil {
		return nil, err
	}
	s.open[repo] = ri
	return ri, nil
}

// Put installs a prebuilt index, replacing and closing any open one.
func (s *RepoSet) Put(ri *RepoIndex) {
	s.mu.Lock()
	old := s.open[ri.Name]
	s.open[ri.Name] = ri
	s.mu.Unlock()
	if old != nil && old != ri {
		_ = old.Close()
	}
}

// Reload drops repo so the next Get reopens it from disk.
func (s *RepoSet) Reload(repo string) {
	s.mu.Lock()
	ri := s.open[repo]
	delete(s.open, repo)
	s.mu.Unlock()
	if ri != nil {
		ri.Hydrator.Purge()
		if err := ri.Close(); err != nil {
			slog.Warn("repo_index_close_failed", slog.String("repo", repo), slog.String("error", err.Error()))
		}
	}
	slog.Info("repo_index_reloaded", slog.String("repo", repo))
}

// Close closes every open index.
func (s *RepoSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, ri := range s.open {
		errs = append(errs, ri.Close())
		delete(s.open, name)
	}
	return errors.Join(errs...)
}
