// Package embed provides the embedding client used by the indexer.
package embed

import (
	"context"
	"time"
)

// Common embedding constants.
const (
	// DefaultDimensions is the embedding dimension used when none is
	// configured.
	DefaultDimensions = 1536

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for a
	// transient provider failure.
	DefaultMaxRetries = 3

	// MaxBatchSize caps a single batch request.
	MaxBatchSize = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}
