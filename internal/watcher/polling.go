package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// poller stats the artifacts of each watched directory on an interval.
type poller struct {
	dirs     map[string]string
	interval time.Duration
	state    map[string]fileSnapshot
	emit     func(FileEvent)
	mu       sync.Mutex
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

func newPoller(dirs map[string]string, interval time.Duration, emit func(FileEvent)) *poller {
	p := &poller{
		dirs:     dirs,
		interval: interval,
		state:    make(map[string]fileSnapshot),
		emit:     emit,
	}
	p.state = p.snapshot()
	return p
}

// run polls until ctx is done or stop is closed.
func (p *poller) run(ctx context.Context, stop <-chan struct{}) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			p.detectChanges()
		}
	}
}

// snapshot stats every artifact of every repo. Missing files are absent.
func (p *poller) snapshot() map[string]fileSnapshot {
	current := make(map[string]fileSnapshot)
	for _, dir := range p.dirs {
		for name := range artifacts {
			path := filepath.Join(dir, name)
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			current[path] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		}
	}
	return current
}

func (p *poller) detectChanges() {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.snapshot()
	now := time.Now()
	for repo, dir := range p.dirs {
		for name := range artifacts {
			path := filepath.Join(dir, name)
			prev, had := p.state[path]
			cur, has := current[path]
			switch {
			case has && !had:
				p.emit(FileEvent{Repo: repo, Path: path, Operation: OpCreate, Timestamp: now})
			case had && !has:
				p.emit(FileEvent{Repo: repo, Path: path, Operation: OpDelete, Timestamp: now})
			case has && (prev.modTime != cur.modTime || prev.size != cur.size):
				p.emit(FileEvent{Repo: repo, Path: path, Operation: OpModify, Timestamp: now})
			}
		}
	}
	p.state = current
}
