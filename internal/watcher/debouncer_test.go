package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer) []Change {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced change")
		return nil
	}
}

func TestDebouncer_CoalescesPerRepo(t *testing.T) {
	// Given: a debouncer and several events for one repo
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	// When: an index build touches three files
	d.Add(FileEvent{Repo: "faxbot", Path: "/d/chunks.jsonl", Operation: OpCreate})
	d.Add(FileEvent{Repo: "faxbot", Path: "/d/sparse_ids.json", Operation: OpModify})
	d.Add(FileEvent{Repo: "faxbot", Path: "/d/chunks.jsonl", Operation: OpModify})

	// Then: one change lists each file once, sorted
	batch := receive(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "faxbot", batch[0].Repo)
	assert.Equal(t, []string{"/d/chunks.jsonl", "/d/sparse_ids.json"}, batch[0].Files)
	assert.False(t, batch[0].Removed)
	assert.Zero(t, d.Pending())
}

func TestDebouncer_SeparateReposEmitSeparately(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Repo: "a", Path: "/a/chunks.jsonl", Operation: OpModify})
	d.Add(FileEvent{Repo: "b", Path: "/b/chunks.jsonl", Operation: OpModify})

	got := map[string]bool{}
	got[receive(t, d)[0].Repo] = true
	got[receive(t, d)[0].Repo] = true
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)
}

func TestDebouncer_DeletedSnippetsMarkRemoved(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Repo: "a", Path: "/a/chunks.jsonl", Operation: OpDelete})

	assert.True(t, receive(t, d)[0].Removed)
}

func TestDebouncer_ReplacedSnippetsNotRemoved(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Repo: "a", Path: "/a/chunks.jsonl", Operation: OpDelete})
	d.Add(FileEvent{Repo: "a", Path: "/a/chunks.jsonl", Operation: OpCreate})

	assert.False(t, receive(t, d)[0].Removed)
}

func TestDebouncer_StopDiscardsPending(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Repo: "a", Path: "/a/chunks.jsonl"})
	assert.Equal(t, 1, d.Pending())

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Repo: "b", Path: "/b/chunks.jsonl"})

	_, ok := <-d.Output()
	assert.False(t, ok)
	assert.Zero(t, d.Pending())
}
