package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWStore is a local VectorIndex: one cosine HNSW graph per collection,
// persisted under a directory as <collection>.graph and <collection>.meta.
type HNSWStore struct {
	mu          sync.RWMutex
	dir         string
	dimensions  int
	collections map[string]*hnswCollection
	closed      bool
}

type hnswCollection struct {
	graph   *hnsw.Graph[uint64]
	keys    map[string]uint64
	metas   map[uint64]Snippet
	nextKey uint64
}

type hnswMeta struct {
	Keys       map[string]uint64
	Metas      map[uint64]Snippet
	NextKey    uint64
	Dimensions int
}

// NewHNSWStore creates a store rooted at dir. Collections already saved
// there are loaded lazily on first use. An empty dir keeps everything in memory.
func NewHNSWStore(dir string, dimensions int) *HNSWStore {
	return &HNSWStore{
		dir:         dir,
		dimensions:  dimensions,
		collections: make(map[string]*hnswCollection),
	}
}

func newHNSWCollection() *hnswCollection {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 64
	g.Ml = 0.25
	return &hnswCollection{
		graph: g,
		keys:  make(map[string]uint64),
		metas: make(map[uint64]Snippet),
	}
}

// collection returns the named collection, loading it from disk if present.
// Must hold mu for writing.
func (s *HNSWStore) collection(name string, create bool) (*hnswCollection, error) {
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	if s.dir != "" {
		if _, err := os.Stat(s.graphPath(name)); err == nil {
			c, err := s.load(name)
			if err != nil {
				return nil, err
			}
			s.collections[name] = c
			return c, nil
		}
	}
	if !create {
		return nil, fmt.Errorf("collection %s not found", name)
	}
	c := newHNSWCollection()
	s.collections[name] = c
	return c, nil
}

func (s *HNSWStore) Upsert(ctx context.Context, collection string, points []VectorPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	c, err := s.collection(collection, true)
	if err != nil {
		return err
	}

	for _, p := range points {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.dimensions > 0 && len(p.Vector) != s.dimensions {
			return ErrDimensionMismatch{Expected: s.dimensions, Got: len(p.Vector)}
		}
		// Replaced ids leave an orphan node that lookups skip.
		if old, ok := c.keys[p.ID]; ok {
			delete(c.metas, old)
		}
		key := c.nextKey
		c.nextKey++

		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		normalize(vec)
		c.graph.Add(hnsw.MakeNode(key, vec))
		c.keys[p.ID] = key
		c.metas[key] = p.Meta.Meta()
	}
	return nil
}

func (s *HNSWStore) Search(ctx context.Context, collection string, vector []float32, k int) ([]VectorHit, error) {
	s.mu.Lock()
	c, err := s.collection(collection, false)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if s.dimensions > 0 && len(vector) != s.dimensions {
		return nil, ErrDimensionMismatch{Expected: s.dimensions, Got: len(vector)}
	}
	if c.graph.Len() == 0 || k <= 0 {
		return []VectorHit{}, nil
	}

	q := make([]float32, len(vector))
	copy(q, vector)
	normalize(q)

	// Over-fetch so orphaned nodes do not shrink the result.
	nodes := c.graph.Search(q, k+c.graph.Len()-len(c.metas))
	hits := make([]VectorHit, 0, k)
	for _, n := range nodes {
		meta, ok := c.metas[n.Key]
		if !ok {
			continue
		}
		d := c.graph.Distance(q, n.Value)
		hits = append(hits, VectorHit{ID: meta.ID, Score: 1 - d/2, Meta: meta})
		if len(hits) == k {
			break
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

// Count returns live points in collection.
func (s *HNSWStore) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	c, err := s.collection(collection, false)
	if err != nil {
		return 0
	}
	return len(c.metas)
}

// Save writes every loaded collection to the store directory.
func (s *HNSWStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create vector dir: %w", err)
	}
	for name, c := range s.collections {
		if err := s.save(name, c); err != nil {
			return fmt.Errorf("save collection %s: %w", name, err)
		}
	}
	return nil
}

// Reset replaces a collection with an empty one. The files on disk are
// overwritten by the next Save.
func (s *HNSWStore) Reset(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = newHNSWCollection()
}

// Forget drops a collection from memory so the next search reloads it from
// disk. Unsaved upserts to it are lost.
func (s *HNSWStore) Forget(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
}

func (s *HNSWStore) graphPath(name string) string {
	return filepath.Join(s.dir, name+".graph")
}

func (s *HNSWStore) save(name string, c *hnswCollection) error {
	if err := writeAtomic(s.graphPath(name), func(f *os.File) error {
		return c.graph.Export(f)
	}); err != nil {
		return err
	}
	meta := hnswMeta{Keys: c.keys, Metas: c.metas, NextKey: c.nextKey, Dimensions: s.dimensions}
	return writeAtomic(filepath.Join(s.dir, name+".meta"), func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	})
}

func (s *HNSWStore) load(name string) (*hnswCollection, error) {
	mf, err := os.Open(filepath.Join(s.dir, name+".meta"))
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer mf.Close()
	var meta hnswMeta
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if s.dimensions > 0 && meta.Dimensions > 0 && meta.Dimensions != s.dimensions {
		return nil, ErrDimensionMismatch{Expected: s.dimensions, Got: meta.Dimensions}
	}

	gf, err := os.Open(s.graphPath(name))
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}
	defer gf.Close()

	c := newHNSWCollection()
	if err := c.graph.Import(bufio.NewReader(gf)); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}
	c.keys = meta.Keys
	c.metas = meta.Metas
	c.nextKey = meta.NextKey
	return c, nil
}

func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.collections = nil
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

var _ VectorIndex = (*HNSWStore)(nil)
