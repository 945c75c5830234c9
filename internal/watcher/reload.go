package watcher

import (
	"context"
	"log/slog"
	"strings"
)

// Run applies changes from w to r until ctx is done or w stops.
func Run(ctx context.Context, w *Watcher, r Reloader) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.Changes():
			if !ok {
				return
			}
			Apply(batch, r)
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Apply reloads every repo in batch.
func Apply(batch []Change, r Reloader) {
	for _, c := range batch {
		slog.Info("index_changed",
			slog.String("repo", c.Repo),
			slog.String("files", strings.Join(c.Files, ",")),
			slog.Bool("removed", c.Removed))
		r.Reload(c.Repo)
	}
}
