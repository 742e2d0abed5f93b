// Package store implements the persistent vector store backing the
// project index. Each indexed file maps to a monotonically allocated
// handle that identifies its vector in the ANN index independently of
// the file path; the metadata sidecar records the path and content
// hash for each live handle.
package store

import "fmt"

// FileMeta is the metadata kept per indexed file.
type FileMeta struct {
	// Path is the project-root-relative identifier.
	Path string

	// ContentHash is the hex digest over the full file bytes.
	ContentHash string
}

// SearchResult is one row of a nearest-neighbour search.
type SearchResult struct {
	// Path is the file identifier.
	Path string

	// Score is the L2 distance to the query, lower is closer.
	Score float32
}

// Config configures a vector store.
type Config struct {
	// Dimensions is the vector dimension (required).
	Dimensions int

	// Path is the on-disk location of the index binary. The metadata
	// sidecar lives at Path + ".meta". Empty means memory-only.
	Path string

	// M is the HNSW connectivity parameter (default 16).
	M int

	// EfSearch is the HNSW search breadth parameter (default 20).
	EfSearch int
}

// ErrDimensionMismatch is returned when a vector's dimension does not
// match the store's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
