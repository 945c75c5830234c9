package watcher

import (
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Aman-CERP/coderag/internal/store"
)

// Debouncer coalesces artifact events per repo. A repo's change is emitted
// once no new event for it has arrived within the window, so an index build
// that rewrites several files produces a single Change.
type Debouncer struct {
	window  time.Duration
	pending map[string]*pendingChange
	mu      sync.Mutex
	output  chan []Change
	stopped bool
}

type pendingChange struct {
	files   map[string]bool
	removed bool
	timer   *time.Timer
}

// NewDebouncer creates a new debouncer with the given window duration.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingChange),
		output:  make(chan []Change, 16),
	}
}

// Add records an event and restarts its repo's quiet period.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	pc, ok := d.pending[event.Repo]
	if !ok {
		pc = &pendingChange{files: make(map[string]bool)}
		d.pending[event.Repo] = pc
	}
	pc.files[event.Path] = true
	switch {
	case event.Operation == OpDelete && filepath.Base(event.Path) == store.SnippetsFile:
		pc.removed = true
	case event.Operation == OpCreate && filepath.Base(event.Path) == store.SnippetsFile:
		// A delete followed by a create is a replacement.
		pc.removed = false
	}

	if pc.timer != nil {
		pc.timer.Stop()
	}
	repo := event.Repo
	pc.timer = time.AfterFunc(d.window, func() {
		d.flush(repo)
	})
}

func (d *Debouncer) flush(repo string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pc, ok := d.pending[repo]
	if d.stopped || !ok {
		return
	}
	delete(d.pending, repo)

	files := make([]string, 0, len(pc.files))
	for f := range pc.files {
		files = append(files, f)
	}
	sort.Strings(files)
	batch := []Change{{Repo: repo, Files: files, Removed: pc.removed}}

	select {
	case d.output <- batch:
	default:
		slog.Warn("debouncer output full, dropping change", slog.String("repo", repo))
	}
}

// Output returns the channel of debounced changes.
func (d *Debouncer) Output() <-chan []Change {
	return d.output
}

// Pending returns the number of repos waiting out their window.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop discards pending changes and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	for _, pc := range d.pending {
		if pc.timer != nil {
			pc.timer.Stop()
		}
	}
	d.pending = nil
	close(d.output)
}
