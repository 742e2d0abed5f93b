package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events to prevent index thrashing.
// Events for the same path within the debounce window are merged:
//   - CREATE + MODIFY = CREATE (file is still new)
//   - CREATE + DELETE = nothing (file never really existed)
//   - MODIFY + DELETE = DELETE (file is gone)
//   - DELETE + CREATE = MODIFY (file was replaced)
type Debouncer struct {
	window  time.Duration
	pending map[string]*pendingEvent
	mu      sync.Mutex
	output  chan []Event
	timer   *time.Timer
	stopCh  chan struct{}
	stopped bool
}

type pendingEvent struct {
	event   Event
	firstOp Kind
}

// NewDebouncer creates a new debouncer with the given window duration.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []Event, 10),
		stopCh:  make(chan struct{}),
	}
}

// Add adds an event to be debounced. Events for the same path are
// coalesced; Moved events flush immediately so ordering against the
// paths they touch is preserved.
func (d *Debouncer) Add(event Event) {
	d.mu.Lock()

	if d.stopped {
		d.mu.Unlock()
		return
	}

	if event.Kind == Moved {
		d.pending[event.Src] = &pendingEvent{event: event, firstOp: Moved}
		d.mu.Unlock()
		d.flush()
		return
	}

	if existing, ok := d.pending[event.Src]; ok {
		coalesced := d.coalesce(existing, event)
		if coalesced == nil {
			delete(d.pending, event.Src)
		} else {
			existing.event = *coalesced
		}
	} else {
		d.pending[event.Src] = &pendingEvent{
			event:   event,
			firstOp: event.Kind,
		}
	}

	d.scheduleFlush()
	d.mu.Unlock()
}

// coalesce merges two events for the same path.
// Returns nil if the events cancel each other out.
func (d *Debouncer) coalesce(existing *pendingEvent, next Event) *Event {
	switch existing.firstOp {
	case Created:
		switch next.Kind {
		case Modified:
			return &existing.event
		case Deleted:
			return nil
		default:
			return &next
		}

	case Modified:
		return &next

	case Deleted:
		if next.Kind == Created {
			result := next
			result.Kind = Modified
			return &result
		}
		return &next

	default:
		return &next
	}
}

// scheduleFlush schedules a flush after the debounce window.
// Callers must hold d.mu.
func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.window, func() {
		d.flush()
	})
}

// flush emits all pending events.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]Event, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	d.pending = make(map[string]*pendingEvent)

	// Non-blocking send
	select {
	case d.output <- events:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(events)))
	}
}

// Output returns the channel of debounced events.
func (d *Debouncer) Output() <-chan []Event {
	return d.output
}

// Stop stops the debouncer and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.stopCh)
	close(d.output)
}
