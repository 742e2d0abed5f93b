package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectBatch(t *testing.T, d *Debouncer) []Event {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for debounced events")
		return nil
	}
}

func TestDebouncer_SingleEventPassesThrough(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Kind: Created, Src: "/p/test.go", Timestamp: time.Now()})

	events := collectBatch(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, Created, events[0].Kind)
	assert.Equal(t, "/p/test.go", events[0].Src)
}

func TestDebouncer_RapidModifiesCoalesce(t *testing.T) {
	d := NewDebouncer(80 * time.Millisecond)
	defer d.Stop()

	for range 5 {
		d.Add(Event{Kind: Modified, Src: "/p/test.go", Timestamp: time.Now()})
		time.Sleep(5 * time.Millisecond)
	}

	events := collectBatch(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, Modified, events[0].Kind)
}

func TestDebouncer_CreateThenModifyStaysCreate(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Kind: Created, Src: "/p/a.go", Timestamp: time.Now()})
	d.Add(Event{Kind: Modified, Src: "/p/a.go", Timestamp: time.Now()})

	events := collectBatch(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, Created, events[0].Kind)
}

func TestDebouncer_CreateThenDeleteCancels(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Kind: Created, Src: "/p/a.go", Timestamp: time.Now()})
	d.Add(Event{Kind: Deleted, Src: "/p/a.go", Timestamp: time.Now()})
	d.Add(Event{Kind: Modified, Src: "/p/b.go", Timestamp: time.Now()})

	// Only b.go survives: the created file never really existed.
	events := collectBatch(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, "/p/b.go", events[0].Src)
}

func TestDebouncer_DeleteThenCreateBecomesModify(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Kind: Deleted, Src: "/p/a.go", Timestamp: time.Now()})
	d.Add(Event{Kind: Created, Src: "/p/a.go", Timestamp: time.Now()})

	events := collectBatch(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, Modified, events[0].Kind)
}

func TestDebouncer_ModifyThenDeleteBecomesDelete(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Kind: Modified, Src: "/p/a.go", Timestamp: time.Now()})
	d.Add(Event{Kind: Deleted, Src: "/p/a.go", Timestamp: time.Now()})

	events := collectBatch(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, Deleted, events[0].Kind)
}

func TestDebouncer_MovedFlushesImmediately(t *testing.T) {
	d := NewDebouncer(10 * time.Second) // window long enough to prove no wait
	defer d.Stop()

	d.Add(Event{Kind: Moved, Src: "/p/a.go", Dst: "/p/b.go", Timestamp: time.Now()})

	events := collectBatch(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, Moved, events[0].Kind)
	assert.Equal(t, "/p/b.go", events[0].Dst)
}

func TestDebouncer_DistinctPathsKeptApart(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Kind: Created, Src: "/p/a.go", Timestamp: time.Now()})
	d.Add(Event{Kind: Deleted, Src: "/p/b.go", Timestamp: time.Now()})

	events := collectBatch(t, d)
	assert.Len(t, events, 2)
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	d.Stop()
	d.Stop()

	// Adds after stop are dropped without panic.
	d.Add(Event{Kind: Created, Src: "/p/a.go", Timestamp: time.Now()})
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "modified", Modified.String())
	assert.Equal(t, "deleted", Deleted.String())
	assert.Equal(t, "moved", Moved.String())
}
