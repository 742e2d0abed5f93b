package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Backoff between embedding retries. Providers rate-limit aggressively
// under indexing load, so the delay doubles up to a small cap.
const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 16 * time.Second
)

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	// APIKey authenticates against the provider. Optional for local
	// OpenAI-compatible endpoints.
	APIKey string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// Dimensions is the expected embedding dimension.
	Dimensions int

	// Timeout bounds a single request (default 30s).
	Timeout time.Duration

	// MaxRetries bounds retries of transient failures per request.
	MaxRetries int
}

// OpenAIEmbedder generates embeddings via an OpenAI-compatible HTTP API.
type OpenAIEmbedder struct {
	client *openai.Client
	config OpenAIConfig

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time.
var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates a new OpenAI-compatible embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
// Batches larger than MaxBatchSize are split.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(texts))
		batch, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}
	return results, nil
}

// embedChunk issues one provider request, retrying transient failures
// with exponential backoff. Each attempt gets its own timeout so a
// hung connection cannot eat the whole retry budget.
func (e *OpenAIEmbedder) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	delay := retryBaseDelay
	var lastErr error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		resp, err := e.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.config.Model),
			Input: texts,
		})
		cancel()

		if err == nil {
			return e.collectEmbeddings(resp, len(texts))
		}
		lastErr = err

		if ctx.Err() != nil || !retryableEmbedError(err) || attempt >= e.config.MaxRetries {
			break
		}

		slog.Debug("embedding request failed, retrying",
			slog.String("model", e.config.Model),
			slog.Int("batch", len(texts)),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, retryMaxDelay)
	}

	return nil, fmt.Errorf("create embeddings: %w", lastErr)
}

// collectEmbeddings validates a provider response against the request.
func (e *OpenAIEmbedder) collectEmbeddings(resp openai.EmbeddingResponse, want int) ([][]float32, error) {
	if len(resp.Data) != want {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Data), want)
	}

	results := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		if len(data.Embedding) != e.config.Dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d",
				e.config.Dimensions, len(data.Embedding))
		}
		results[data.Index] = data.Embedding
	}
	return results, nil
}

// retryableEmbedError decides whether a failed embedding call is worth
// retrying. Rate limits, request timeouts and provider 5xx are
// transient; other API rejections (bad key, bad model, oversized
// input) will fail the same way every time. Transport-level errors are
// treated as transient, but a cancelled caller is not retried.
func retryableEmbedError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return true
		}
		return apiErr.HTTPStatusCode >= 500
	}

	// Deadline overruns and network errors: transient.
	return true
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
