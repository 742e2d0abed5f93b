package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWatcher runs the watcher against a fresh temp root and returns
// the root. The watcher is stopped on test cleanup.
func startWatcher(t *testing.T) (*FsWatcher, string) {
	t.Helper()

	root := t.TempDir()
	w, err := NewFsWatcher(Options{DebounceWindow: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})

	go func() { _ = w.Start(ctx, root) }()
	// Give the watch registration a moment before mutating the tree.
	time.Sleep(100 * time.Millisecond)

	return w, root
}

// waitFor drains batches until an event satisfying the predicate
// arrives or the timeout expires.
func waitFor(t *testing.T, w *FsWatcher, timeout time.Duration, match func(Event) bool) *Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case batch := <-w.Events():
			for _, ev := range batch {
				if match(ev) {
					return &ev
				}
			}
		case <-deadline:
			return nil
		}
	}
}

func TestFsWatcher_DetectsCreate(t *testing.T) {
	w, root := startWatcher(t)

	path := filepath.Join(root, "new.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))

	ev := waitFor(t, w, 3*time.Second, func(ev Event) bool {
		return ev.Src == path
	})
	require.NotNil(t, ev, "no event for created file")
	assert.Equal(t, Created, ev.Kind)
}

func TestFsWatcher_DetectsDelete(t *testing.T) {
	w, root := startWatcher(t)

	path := filepath.Join(root, "doomed.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))

	// Drain the create, then delete.
	waitFor(t, w, 3*time.Second, func(ev Event) bool { return ev.Src == path })
	require.NoError(t, os.Remove(path))

	ev := waitFor(t, w, 3*time.Second, func(ev Event) bool {
		return ev.Src == path && ev.Kind == Deleted
	})
	require.NotNil(t, ev, "no event for deleted file")
}

func TestFsWatcher_IgnoresSkippedDirs(t *testing.T) {
	w, root := startWatcher(t)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "x.js"), []byte("1"), 0o644))

	ev := waitFor(t, w, time.Second, func(ev Event) bool {
		return filepath.Base(ev.Src) == "x.js"
	})
	assert.Nil(t, ev, "events under node_modules should not surface")
}

func TestFsWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewFsWatcher(Options{})
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
