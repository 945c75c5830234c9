package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches repo data directories with fsnotify, falling back to
// polling, and emits debounced per-repo changes.
type Watcher struct {
	fsWatcher   *fsnotify.Watcher
	useFsnotify bool
	dirs        map[string]string
	byDir       map[string]string
	debouncer   *Debouncer
	changes     chan []Change
	errors      chan error
	stopCh      chan struct{}
	opts        Options
	mu          sync.RWMutex
	stopped     bool
	dropped     atomic.Uint64
}

// New creates a watcher for dirs, keyed by repo name. Directories are
// created if missing so a repo indexed later is still picked up.
func New(dirs map[string]string, opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no directories to watch")
	}

	w := &Watcher{
		dirs:      make(map[string]string, len(dirs)),
		byDir:     make(map[string]string, len(dirs)),
		debouncer: NewDebouncer(opts.DebounceWindow),
		changes:   make(chan []Change, 16),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}
	for repo, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", dir, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", abs, err)
		}
		w.dirs[repo] = abs
		w.byDir[abs] = repo
	}

	if !opts.ForcePolling {
		if fsw, err := fsnotify.NewWatcher(); err == nil {
			w.fsWatcher = fsw
			w.useFsnotify = true
			for _, dir := range w.dirs {
				if err := fsw.Add(dir); err != nil {
					slog.Warn("fsnotify_add_failed, falling back to polling",
						slog.String("dir", dir), slog.String("error", err.Error()))
					_ = fsw.Close()
					w.fsWatcher = nil
					w.useFsnotify = false
					break
				}
			}
		}
	}
	return w, nil
}

// Start watches until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	go w.forward(ctx)

	slog.Info("watcher_started",
		slog.String("type", w.Type()),
		slog.Int("repos", len(w.dirs)))

	if !w.useFsnotify {
		p := newPoller(w.dirs, w.opts.PollInterval, w.debouncer.Add)
		err := p.run(ctx, w.stopCh)
		if ctx.Err() != nil {
			_ = w.Stop()
		}
		return err
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) handleFsnotifyEvent(event fsnotify.Event) {
	if !IsIndexArtifact(event.Name) {
		return
	}
	repo, ok := w.byDir[filepath.Dir(event.Name)]
	if !ok {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.debouncer.Add(FileEvent{
		Repo:      repo,
		Path:      event.Name,
		Operation: op,
		Timestamp: time.Now(),
	})
}

func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emit(batch)
		}
	}
}

func (w *Watcher) emit(batch []Change) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.changes <- batch:
	default:
		count := w.dropped.Add(1)
		slog.Warn("change buffer full, dropping batch",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped_batches", count))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher and closes its channels. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	close(w.changes)
	close(w.errors)
	return nil
}

// Changes returns the channel of debounced per-repo changes.
func (w *Watcher) Changes() <-chan []Change {
	return w.changes
}

// Errors returns the channel of non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Type returns "fsnotify" or "polling".
func (w *Watcher) Type() string {
	if w.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}

// DroppedBatches returns the number of change batches dropped on overflow.
func (w *Watcher) DroppedBatches() uint64 {
	return w.dropped.Load()
}
