// Package watcher delivers filesystem change events to the indexer.
// Events carry absolute paths; moves carry both the old and the new
// path. Delivery is at-least-once: the indexer is idempotent on
// modifications that leave the content hash unchanged.
package watcher

import (
	"context"
	"time"
)

// Kind is the type of a filesystem event.
type Kind int

const (
	// Created indicates a new file appeared.
	Created Kind = iota
	// Modified indicates an existing file changed.
	Modified
	// Deleted indicates a file disappeared.
	Deleted
	// Moved indicates a file changed path; Src and Dst are both set.
	Moved
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Moved:
		return "moved"
	default:
		return "unknown"
	}
}

// Event represents a single filesystem event.
type Event struct {
	// Kind is the event type.
	Kind Kind

	// Src is the absolute path the event refers to.
	Src string

	// Dst is the destination path for Moved events, empty otherwise.
	Dst string

	// IsDir indicates the event is for a directory.
	IsDir bool

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// Watcher is the event source consumed by the indexer.
type Watcher interface {
	// Start begins watching the given directory recursively. It runs
	// until Stop is called or the context is cancelled.
	Start(ctx context.Context, path string) error

	// Stop stops the watcher and releases resources. Safe to call
	// multiple times.
	Stop() error

	// Events returns the channel of debounced event batches.
	Events() <-chan []Event

	// Errors returns the channel of non-fatal watcher errors.
	Errors() <-chan error
}

// Options configures watcher behavior.
type Options struct {
	// DebounceWindow is the time to wait before emitting coalesced
	// events. Default: 200ms.
	DebounceWindow time.Duration

	// EventBufferSize is the size of the event channel buffer.
	// Default: 1000.
	EventBufferSize int
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		EventBufferSize: 1000,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
