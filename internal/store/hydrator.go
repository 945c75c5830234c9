package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Hydration modes.
const (
	HydrateLazy = "lazy"
	HydrateNone = "none"
)

// Hydrator fills in snippet bodies from chunks.jsonl on demand. Bodies are
// memoised by id and by hash; a key always maps to the same truncated body,
// so concurrent turns may populate the cache without coordination.
type Hydrator struct {
	path     string
	mode     string
	maxChars int
	cache    *lru.Cache[string, string]

	// scanMu serialises file scans; cache reads never take it.
	scanMu sync.Mutex
}

// NewHydrator reads bodies from path (a chunks.jsonl file).
func NewHydrator(path, mode string, maxChars, cacheSize int) (*Hydrator, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create hydration cache: %w", err)
	}
	if mode == "" {
		mode = HydrateLazy
	}
	return &Hydrator{path: path, mode: mode, maxChars: maxChars, cache: cache}, nil
}

// Hydrate returns snippets with Code filled where it was empty and the body
// could be found. Snippets that already carry Code are truncated in place.
// Missing bodies are left empty; hydration never fails the caller.
func (h *Hydrator) Hydrate(snippets []Snippet) []Snippet {
	out := make([]Snippet, len(snippets))
	copy(out, snippets)

	want := make(map[string]bool)
	for i := range out {
		if out[i].Code != "" {
			out[i].Code = h.truncate(out[i].Code)
			continue
		}
		if h.mode == HydrateNone {
			continue
		}
		if body, ok := h.lookup(out[i]); ok {
			out[i].Code = body
			continue
		}
		if out[i].ID != "" {
			want[out[i].ID] = true
		}
		if out[i].Hash != "" {
			want[out[i].Hash] = true
		}
	}
	if len(want) == 0 {
		return out
	}

	h.scan(want)
	for i := range out {
		if out[i].Code == "" && h.mode != HydrateNone {
			if body, ok := h.lookup(out[i]); ok {
				out[i].Code = body
			}
		}
	}
	return out
}

func (h *Hydrator) lookup(s Snippet) (string, bool) {
	if s.ID != "" {
		if body, ok := h.cache.Get(s.ID); ok {
			return body, true
		}
	}
	if s.Hash != "" {
		if body, ok := h.cache.Get(s.Hash); ok {
			return body, true
		}
	}
	return "", false
}

// scan streams the snippet file once, caching bodies for the wanted keys.
func (h *Hydrator) scan(want map[string]bool) {
	h.scanMu.Lock()
	defer h.scanMu.Unlock()

	errStop := errors.New("all wanted bodies found")
	err := ScanSnippetsFile(h.path, func(_ int, s Snippet) error {
		hitID := s.ID != "" && want[s.ID]
		hitHash := s.Hash != "" && want[s.Hash]
		if !hitID && !hitHash {
			return nil
		}
		body := h.truncate(s.Code)
		if hitID {
			h.cache.Add(s.ID, body)
			delete(want, s.ID)
		}
		if hitHash {
			h.cache.Add(s.Hash, body)
			delete(want, s.Hash)
		}
		// a record without an id carries ID == Hash, so count keys, not hits
		if len(want) == 0 {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("hydration_scan_failed", slog.String("path", h.path), slog.String("error", err.Error()))
	}
}

// truncate cuts code to maxChars bytes without splitting a rune.
func (h *Hydrator) truncate(code string) string {
	if h.maxChars <= 0 || len(code) <= h.maxChars {
		return code
	}
	n := h.maxChars
	for n > 0 && !utf8.RuneStart(code[n]) {
		n--
	}
	return code[:n]
}

// Purge drops memoised bodies, used when the snippet file is replaced.
func (h *Hydrator) Purge() {
	h.cache.Purge()
}
