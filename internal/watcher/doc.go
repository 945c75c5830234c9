// Package watcher reloads repo indexes when their on-disk artifacts change.
//
// Each repo data directory is watched with fsnotify; when fsnotify cannot be
// used (network mounts, some container volumes) the directories are polled.
// Events are debounced per repo so a full index rebuild causes one reload.
//
// Usage:
//
//	w, err := watcher.New(map[string]string{"faxbot": ".coderag/faxbot"}, watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go func() { _ = w.Start(ctx) }()
//	watcher.Run(ctx, w, repoSet)
package watcher
