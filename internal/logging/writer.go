package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is an io.Writer that rotates the log file once it
// grows past a size threshold. Rotated files form a fixed-length
// numbered chain (daemon.log.1 is the newest, daemon.log.<keep> the
// oldest); the write that crosses the threshold completes before the
// file is rotated, so a rotation can never split a log record.
// Thresholds come from the daemon configuration.
type RotatingWriter struct {
	path     string
	maxBytes int64
	keep     int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter creates a rotating writer for path. maxSizeMB is
// the rotation threshold; maxFiles is the length of the rotated chain.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	w := &RotatingWriter{
		path:     path,
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
		keep:     maxFiles,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := w.open(); err != nil {
		return nil, err
	}

	return w, nil
}

// Write appends to the active log file and rotates afterwards if the
// threshold was crossed.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	w.size += int64(n)

	if err == nil && w.size >= w.maxBytes {
		if rerr := w.shift(); rerr != nil {
			// Keep writing to the oversized file rather than lose logs.
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", rerr)
		}
	}

	return n, err
}

// Close closes the active file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// Sync flushes the active file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return w.file.Sync()
	}
	return nil
}

// open opens the active log file for appending and records its size.
func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	w.file = f
	w.size = info.Size()
	return nil
}

// shift closes the active file, drops the oldest slot of the chain,
// moves every remaining slot up by one, parks the active file in slot
// 1 and reopens a fresh file. Missing slots simply fail their rename
// and are skipped.
func (w *RotatingWriter) shift() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("close log file: %w", err)
		}
		w.file = nil
	}

	_ = os.Remove(w.slot(w.keep))
	for n := w.keep - 1; n >= 1; n-- {
		_ = os.Rename(w.slot(n), w.slot(n+1))
	}

	if w.keep >= 1 {
		if err := os.Rename(w.path, w.slot(1)); err != nil {
			return fmt.Errorf("rotate log file: %w", err)
		}
	} else {
		_ = os.Remove(w.path)
	}

	return w.open()
}

func (w *RotatingWriter) slot(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}
