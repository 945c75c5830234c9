package watcher

import (
	"path/filepath"
	"time"

	"github.com/Aman-CERP/coderag/internal/store"
)

// Operation represents a file system operation type.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change to one index artifact of a repo.
type FileEvent struct {
	Repo      string
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Change is the debounced set of artifact changes for one repo.
type Change struct {
	Repo  string
	Files []string
	// Removed is set when the snippet file itself was deleted.
	Removed bool
}

// Reloader drops a repo's open indexes so the next search reopens them.
type Reloader interface {
	Reload(repo string)
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the quiet time before a repo's changes are emitted.
	// Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the interval for polling mode.
	// Default: 5s
	PollInterval time.Duration

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 500 * time.Millisecond,
		PollInterval:   5 * time.Second,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	return o
}

var artifacts = map[string]bool{
	store.SnippetsFile:      true,
	store.CardsFile:         true,
	store.PositionsFile:     true,
	store.CardPositionsFile: true,
	store.ManifestFile:      true,
	store.SparseDB:          true,
}

// IsIndexArtifact reports whether a file in a repo data directory affects
// what searches read. The lock file and temp files do not.
func IsIndexArtifact(path string) bool {
	return artifacts[filepath.Base(path)]
}
