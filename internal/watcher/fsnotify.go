package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// skipDirs are directory names never watched. The watcher's filter is
// coarse; the indexer applies the authoritative relevance predicate.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	".venv":        true,
	"__pycache__":  true,
	"node_modules": true,
	"build":        true,
	"dist":         true,
	"target":       true,
}

// FsWatcher implements Watcher on top of fsnotify. Renames arrive
// from the platform as separate remove/create notifications, so they
// surface as Deleted plus Created events rather than a single Moved.
type FsWatcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []Event
	errors    chan error
	stopCh    chan struct{}
	rootPath  string
	opts      Options

	mu      sync.Mutex
	stopped bool
}

var _ Watcher = (*FsWatcher)(nil)

// NewFsWatcher creates a new fsnotify-backed watcher.
func NewFsWatcher(opts Options) (*FsWatcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &FsWatcher{
		fsw:       fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []Event, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}, nil
}

// Start begins watching the given directory recursively. Blocks until
// the context is cancelled or Stop is called.
func (w *FsWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.rootPath = absPath

	if err := w.addRecursive(absPath); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	go w.forwardDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handleFsnotifyEvent converts an fsnotify event into ours.
func (w *FsWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var kind Kind
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = Created
		// New directories need to join the watch set.
		if isDir {
			if !skipDirs[filepath.Base(event.Name)] {
				_ = w.addRecursive(event.Name)
			}
			return
		}
	case event.Op&fsnotify.Write != 0:
		kind = Modified
	case event.Op&fsnotify.Remove != 0:
		kind = Deleted
	case event.Op&fsnotify.Rename != 0:
		// The path named in a rename notification no longer exists;
		// the new path arrives as a separate Create.
		kind = Deleted
	default:
		// Chmod and friends.
		return
	}

	if isDir && kind != Deleted {
		return
	}

	w.debouncer.Add(Event{
		Kind:      kind,
		Src:       event.Name,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// forwardDebounced forwards debounced batches to the output channel.
func (w *FsWatcher) forwardDebounced(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) == 0 {
				continue
			}
			select {
			case w.events <- events:
			default:
				w.emitError(fmt.Errorf("event buffer full, dropped %d events", len(events)))
			}
		}
	}
}

// addRecursive adds all directories under root to the watch set.
func (w *FsWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip subtrees we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *FsWatcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

// Events returns the channel of debounced event batches.
func (w *FsWatcher) Events() <-chan []Event {
	return w.events
}

// Errors returns the channel of watcher errors.
func (w *FsWatcher) Errors() <-chan error {
	return w.errors
}

// Stop stops the watcher. Safe to call multiple times.
func (w *FsWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true

	close(w.stopCh)
	w.debouncer.Stop()
	return w.fsw.Close()
}
