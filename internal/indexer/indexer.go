// Package indexer composes discovery, extraction, resolution, the
// vector store and the dependency graph, and holds the authoritative
// reconciliation logic for filesystem events.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	cerrors "github.com/codechat/codechatd/internal/errors"
	"golang.org/x/sync/errgroup"

	"github.com/codechat/codechatd/internal/discovery"
	"github.com/codechat/codechatd/internal/embed"
	"github.com/codechat/codechatd/internal/extract"
	"github.com/codechat/codechatd/internal/graph"
	"github.com/codechat/codechatd/internal/resolve"
	"github.com/codechat/codechatd/internal/store"
	"github.com/codechat/codechatd/internal/watcher"
)

// maxEmbedChars bounds the embedding input: the file's leading 8000
// characters. The content hash still covers the full bytes, so any
// change past the boundary invalidates the cached vector.
const maxEmbedChars = 8000

// embedWorkers bounds concurrent embedding calls during a rebuild.
const embedWorkers = 8

// lockFileName is the cache-directory lock file enforcing single-
// process ownership of the on-disk index.
const lockFileName = "codechatd.lock"

// Config configures an Indexer.
type Config struct {
	// Root is the absolute project root.
	Root string

	// CacheDir is where the index binary and metadata sidecar live.
	CacheDir string

	// Dimensions is the embedding vector dimension.
	Dimensions int

	// Embedder is the embedding client.
	Embedder embed.Embedder
}

// Indexer owns a VectorStore and a DependencyGraph and keeps both
// consistent under a stream of filesystem events arriving concurrently
// with read queries.
//
// Mutating operations (BuildIndex, ProcessEvent) serialize on a coarse
// mutex. ProcessEvent computes its embedding before taking that lock and
// commits under it; BuildIndex holds the lock for the whole rebuild,
// embedding included. Queries never take the mutex, so they stay
// responsive during slow provider calls.
type Indexer struct {
	cfg       Config
	disc      *discovery.Discovery
	extractor *extract.Extractor
	resolver  *resolve.Resolver
	graph     *graph.Graph
	embedder  embed.Embedder
	lock      *flock.Flock

	mu sync.Mutex // serializes mutators

	storeMu sync.RWMutex // guards the store pointer
	store   *store.VectorStore
}

// New creates an Indexer, acquiring the cache-directory lock and
// restoring any persisted store state.
func New(cfg Config) (*Indexer, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("project root is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = cfg.Embedder.Dimensions()
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.CacheDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("cache directory %s is in use by another process", cfg.CacheDir)
	}

	st, err := store.New(store.Config{
		Dimensions: cfg.Dimensions,
		Path:       filepath.Join(cfg.CacheDir, "index.hnsw"),
	})
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	extractor := extract.New()
	resolver, err := resolve.New()
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	g := graph.New(extractor, resolver)
	g.SetRoot(cfg.Root)

	idx := &Indexer{
		cfg:       cfg,
		disc:      discovery.New(cfg.Root, cfg.CacheDir),
		extractor: extractor,
		resolver:  resolver,
		graph:     g,
		embedder:  cfg.Embedder,
		lock:      lock,
		store:     st,
	}
	return idx, nil
}

// Graph returns the dependency graph for read queries.
func (i *Indexer) Graph() *graph.Graph {
	return i.graph
}

// Close releases the cache-directory lock.
func (i *Indexer) Close() error {
	return i.lock.Unlock()
}

func (i *Indexer) currentStore() *store.VectorStore {
	i.storeMu.RLock()
	defer i.storeMu.RUnlock()
	return i.store
}

func (i *Indexer) swapStore(s *store.VectorStore) {
	i.storeMu.Lock()
	i.store = s
	i.storeMu.Unlock()
}

// relID converts an absolute path into the canonical identifier: the
// root-relative slash path, or the absolute path outside the root.
func (i *Indexer) relID(absPath string) string {
	rel, err := filepath.Rel(i.cfg.Root, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(absPath)
	}
	return filepath.ToSlash(rel)
}

// contentHash is the hex sha256 digest over the raw file bytes.
func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// embedInput truncates file content to the leading maxEmbedChars
// characters.
func embedInput(data []byte) string {
	text := string(data)
	runes := []rune(text)
	if len(runes) <= maxEmbedChars {
		return text
	}
	return string(runes[:maxEmbedChars])
}

// BuildIndex performs a full rebuild: discovers files, reuses vectors
// for files whose content hash is unchanged, embeds the rest, swaps in
// the new store, flushes it, and rebuilds the dependency graph.
func (i *Indexer) BuildIndex(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	old := i.currentStore()
	snapshot := old.Snapshot()

	fresh, err := store.NewEmpty(store.Config{
		Dimensions: old.Dimensions(),
		Path:       filepath.Join(i.cfg.CacheDir, "index.hnsw"),
	})
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	files := i.disc.Files(ctx)
	slog.Info("building index",
		slog.String("root", i.cfg.Root),
		slog.Int("files", len(files)))

	type pending struct {
		id    string
		hash  string
		input string
	}
	var toEmbed []pending
	reused := 0

	for _, absPath := range files {
		data, err := os.ReadFile(absPath)
		if err != nil {
			slog.Warn("skipping unreadable file",
				slog.String("path", absPath),
				slog.String("error", err.Error()))
			continue
		}

		id := i.relID(absPath)
		hash := contentHash(data)

		if prevHash, ok := snapshot[id]; ok && prevHash == hash {
			if vec, ok := old.GetVector(id); ok {
				if err := fresh.Add(id, hash, vec); err != nil {
					slog.Warn("failed to carry vector forward",
						slog.String("id", id),
						slog.String("error", err.Error()))
				} else {
					reused++
					continue
				}
			}
		}

		toEmbed = append(toEmbed, pending{id: id, hash: hash, input: embedInput(data)})
	}

	// Embedding is remote I/O; run a bounded worker pool. A failed
	// call aborts only that file.
	vectors := make([][]float32, len(toEmbed))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(embedWorkers)
	for n := range toEmbed {
		eg.Go(func() error {
			vec, err := i.embedder.Embed(egCtx, toEmbed[n].input)
			if err != nil {
				slog.Warn("embedding failed, skipping file",
					slog.String("id", toEmbed[n].id),
					slog.String("error", err.Error()))
				return nil
			}
			vectors[n] = vec
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	embedded := 0
	for n, p := range toEmbed {
		if vectors[n] == nil {
			continue
		}
		if err := fresh.Add(p.id, p.hash, vectors[n]); err != nil {
			slog.Warn("failed to add vector",
				slog.String("id", p.id),
				slog.String("error", err.Error()))
			continue
		}
		embedded++
	}

	i.swapStore(fresh)

	if err := fresh.Flush(); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStoreFlush, err)
	}

	i.graph.Build(ctx, files)

	slog.Info("index built",
		slog.Int("indexed", fresh.Len()),
		slog.Int("embedded", embedded),
		slog.Int("reused", reused))
	return nil
}

// ProcessEvent applies a single filesystem event to the index.
// Directory events and irrelevant paths are silently dropped. Flush
// failures surface to the caller.
func (i *Indexer) ProcessEvent(ctx context.Context, ev watcher.Event) error {
	if ev.IsDir {
		return nil
	}

	switch ev.Kind {
	case watcher.Created, watcher.Modified:
		return i.upsertFile(ctx, ev.Src)
	case watcher.Deleted:
		return i.deleteFile(ev.Src)
	case watcher.Moved:
		// A move is a delete of the old path followed by a create of
		// the new one.
		if err := i.deleteFile(ev.Src); err != nil {
			return err
		}
		return i.upsertFile(ctx, ev.Dst)
	default:
		return nil
	}
}

// upsertFile handles created and modified events. A modification that
// leaves the content hash unchanged is a no-op: no embedding call, no
// store change.
func (i *Indexer) upsertFile(ctx context.Context, absPath string) error {
	if !i.disc.IsRelevant(absPath) {
		return nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		slog.Warn("failed to read changed file",
			slog.String("path", absPath),
			slog.String("error", err.Error()))
		return nil
	}

	id := i.relID(absPath)
	hash := contentHash(data)

	st := i.currentStore()
	if meta, ok := st.GetMeta(id); ok && meta.ContentHash == hash {
		return nil
	}

	// Embed before taking the mutator lock; provider calls can take
	// seconds. On failure the previous vector for the id is retained.
	vec, err := i.embedder.Embed(ctx, embedInput(data))
	if err != nil {
		slog.Warn("embedding failed, keeping previous vector",
			slog.String("id", id),
			slog.String("error", err.Error()))
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	st = i.currentStore()
	if err := st.Add(id, hash, vec); err != nil {
		return fmt.Errorf("add %s to store: %w", id, err)
	}
	if err := st.Flush(); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStoreFlush, err)
	}

	i.graph.AddOrUpdateFile(ctx, absPath)
	return nil
}

// deleteFile handles deleted events.
func (i *Indexer) deleteFile(absPath string) error {
	if !i.disc.InRoot(absPath) {
		return nil
	}

	id := i.relID(absPath)

	i.mu.Lock()
	defer i.mu.Unlock()

	st := i.currentStore()
	if st.RemoveByPath(id) {
		if err := st.Flush(); err != nil {
			return cerrors.Wrap(cerrors.ErrCodeStoreFlush, err)
		}
	}

	i.graph.RemoveFile(absPath)
	return nil
}

// Query embeds the text and returns the k nearest indexed files,
// closest first. Embedding-provider errors surface to the caller.
func (i *Indexer) Query(ctx context.Context, text string, k int) ([]store.SearchResult, error) {
	vec, err := i.embedder.Embed(ctx, text)
	if err != nil {
		return nil, cerrors.EmbedError("embed query", err)
	}
	return i.currentStore().Search(vec, k)
}

// Len returns the number of indexed files.
func (i *Indexer) Len() int {
	return i.currentStore().Len()
}
