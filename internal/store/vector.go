package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// VectorStore is a persisted mapping from file id to vector with
// identity-preserving removal and top-k nearest-neighbour search.
//
// Invariants:
//   - pathToHandle and the inverse projection of handleToMeta hold the
//     same key set.
//   - every live handle is present in the index (except transiently
//     during add/remove).
//   - nextHandle is strictly greater than every allocated handle;
//     handles are never reused.
type VectorStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	cfg   Config

	pathToHandle map[string]uint64
	handleToMeta map[uint64]FileMeta
	nextHandle   uint64
}

// sidecar is the gob-serialised metadata persisted next to the index.
type sidecar struct {
	HandleToMeta map[uint64]FileMeta
	PathToHandle map[string]uint64
	NextHandle   uint64
	Dimensions   int
}

// New creates a vector store. When cfg.Path names existing persistence
// artifacts of the same dimension they are restored; otherwise the
// store starts empty (a dimension mismatch or unreadable artifact is
// logged, never fatal — the on-disk files are only replaced on the
// next Flush).
func New(cfg Config) (*VectorStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("store dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	s := &VectorStore{
		cfg:          cfg,
		graph:        newGraph(cfg),
		pathToHandle: make(map[string]uint64),
		handleToMeta: make(map[uint64]FileMeta),
	}

	if cfg.Path != "" {
		if err := s.load(); err != nil {
			slog.Warn("vector store load failed, starting empty",
				slog.String("path", cfg.Path),
				slog.String("error", err.Error()))
			s.reset()
		}
	}

	return s, nil
}

// NewEmpty creates a vector store that ignores any persistence
// artifacts at cfg.Path. Used by full rebuilds, which replace the
// on-disk state wholesale on the next Flush.
func NewEmpty(cfg Config) (*VectorStore, error) {
	cfg2 := cfg
	cfg2.Path = ""
	s, err := New(cfg2)
	if err != nil {
		return nil, err
	}
	s.cfg.Path = cfg.Path
	return s, nil
}

// newGraph builds an empty HNSW graph with L2 distance.
func newGraph(cfg Config) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.EuclideanDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

func (s *VectorStore) reset() {
	s.graph = newGraph(s.cfg)
	s.pathToHandle = make(map[string]uint64)
	s.handleToMeta = make(map[uint64]FileMeta)
	s.nextHandle = 0
}

// Dimensions returns the configured vector dimension.
func (s *VectorStore) Dimensions() int {
	return s.cfg.Dimensions
}

// Add inserts a vector for the given id. An existing entry for the
// same id is removed first; the new entry always gets a fresh handle.
func (s *VectorStore) Add(id, contentHash string, vector []float32) error {
	if len(vector) != s.cfg.Dimensions {
		return ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(vector)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pathToHandle[id]; exists {
		s.removeLocked(id)
	}

	handle := s.nextHandle
	s.nextHandle++

	vec := make([]float32, len(vector))
	copy(vec, vector)

	s.graph.Add(hnsw.MakeNode(handle, vec))
	s.pathToHandle[id] = handle
	s.handleToMeta[handle] = FileMeta{Path: id, ContentHash: contentHash}

	return nil
}

// RemoveByPath removes the entry for id. Returns true iff it existed.
func (s *VectorStore) RemoveByPath(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pathToHandle[id]; !exists {
		return false
	}
	s.removeLocked(id)
	return true
}

// removeLocked removes id from the maps and the index. Index removal
// failures are logged; the maps are cleaned regardless.
func (s *VectorStore) removeLocked(id string) {
	handle := s.pathToHandle[id]
	delete(s.pathToHandle, id)
	delete(s.handleToMeta, handle)

	if s.graph.Len() == 1 {
		// Deleting the final node leaves the graph with a dangling
		// entry point; replace it with a fresh graph instead.
		s.graph = newGraph(s.cfg)
		return
	}
	if ok := s.graph.Delete(handle); !ok {
		slog.Warn("vector index removal failed, mapping cleaned",
			slog.String("id", id),
			slog.Uint64("handle", handle))
	}
}

// GetMeta returns the metadata for id, or false if unknown.
func (s *VectorStore) GetMeta(id string) (FileMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle, ok := s.pathToHandle[id]
	if !ok {
		return FileMeta{}, false
	}
	meta, ok := s.handleToMeta[handle]
	return meta, ok
}

// GetVector reconstructs the stored vector for id from the index.
// A stale mapping (handle no longer live in the index) is removed and
// false returned.
func (s *VectorStore) GetVector(id string) ([]float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, ok := s.pathToHandle[id]
	if !ok {
		return nil, false
	}

	vec, ok := s.graph.Lookup(handle)
	if !ok {
		slog.Warn("stale vector mapping removed", slog.String("id", id))
		delete(s.pathToHandle, id)
		delete(s.handleToMeta, handle)
		return nil, false
	}

	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Snapshot returns the current id -> contentHash mapping. Used by the
// indexer to reuse vectors across a full rebuild.
func (s *VectorStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.pathToHandle))
	for id, handle := range s.pathToHandle {
		out[id] = s.handleToMeta[handle].ContentHash
	}
	return out
}

// Len returns the number of indexed files.
func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pathToHandle)
}

// Search returns up to k nearest neighbours of query by L2 distance,
// closest first. Rows whose handle has lost its metadata are skipped.
func (s *VectorStore) Search(query []float32, k int) ([]SearchResult, error) {
	if len(query) != s.cfg.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(query)}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph.Len() == 0 || k <= 0 {
		return []SearchResult{}, nil
	}

	nodes := s.graph.Search(query, k)

	results := make([]SearchResult, 0, len(nodes))
	for _, node := range nodes {
		meta, exists := s.handleToMeta[node.Key]
		if !exists {
			// Stale row from a removed entry.
			continue
		}

		results = append(results, SearchResult{
			Path:  meta.Path,
			Score: s.graph.Distance(query, node.Value),
		})
	}

	return results, nil
}

// Flush persists the index binary and the metadata sidecar atomically
// (write to temp, rename). I/O failures are returned to the caller.
func (s *VectorStore) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg.Path == "" {
		return nil
	}

	dir := filepath.Dir(s.cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmpIndexPath := s.cfg.Path + ".tmp"
	file, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpIndexPath)
		return fmt.Errorf("export index: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("close index file: %w", err)
	}

	if err := os.Rename(tmpIndexPath, s.cfg.Path); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	if err := s.saveSidecar(s.metaPath()); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}

	return nil
}

func (s *VectorStore) metaPath() string {
	return s.cfg.Path + ".meta"
}

// saveSidecar writes the metadata maps to a gob file.
func (s *VectorStore) saveSidecar(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := sidecar{
		HandleToMeta: s.handleToMeta,
		PathToHandle: s.pathToHandle,
		NextHandle:   s.nextHandle,
		Dimensions:   s.cfg.Dimensions,
	}

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// load restores the store from disk. Both artifacts must exist and the
// persisted dimension must equal the configured one; anything else is
// an error and the caller starts empty.
func (s *VectorStore) load() error {
	if _, err := os.Stat(s.cfg.Path); err != nil {
		if os.IsNotExist(err) {
			if _, merr := os.Stat(s.metaPath()); os.IsNotExist(merr) {
				// Fresh start, nothing to restore.
				return nil
			}
		}
		return fmt.Errorf("stat index file: %w", err)
	}

	meta, err := loadSidecar(s.metaPath())
	if err != nil {
		return err
	}
	if meta.Dimensions != s.cfg.Dimensions {
		return fmt.Errorf("persisted dimension %d does not match configured %d",
			meta.Dimensions, s.cfg.Dimensions)
	}

	file, err := os.Open(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// hnsw Import requires an io.ByteReader.
	reader := bufio.NewReader(file)
	if err := s.graph.Import(reader); err != nil {
		return fmt.Errorf("import index: %w", err)
	}

	s.pathToHandle = meta.PathToHandle
	s.handleToMeta = meta.HandleToMeta
	s.nextHandle = meta.NextHandle

	s.cleanStaleMappings()
	return nil
}

// loadSidecar reads the metadata gob file.
func loadSidecar(path string) (*sidecar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta sidecar
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if meta.PathToHandle == nil {
		meta.PathToHandle = make(map[string]uint64)
	}
	if meta.HandleToMeta == nil {
		meta.HandleToMeta = make(map[uint64]FileMeta)
	}
	return &meta, nil
}

// cleanStaleMappings drops any id whose handle is not live in the
// restored index.
func (s *VectorStore) cleanStaleMappings() {
	for id, handle := range s.pathToHandle {
		if _, ok := s.graph.Lookup(handle); !ok {
			slog.Warn("dropping stale mapping after load",
				slog.String("id", id),
				slog.Uint64("handle", handle))
			delete(s.pathToHandle, id)
			delete(s.handleToMeta, handle)
		}
	}
	// The persisted nextHandle must stay ahead of every live handle
	// even if the sidecar was written by an older process.
	for handle := range s.handleToMeta {
		if handle >= s.nextHandle {
			s.nextHandle = handle + 1
		}
	}
}

// ReadStoredDimensions reads the dimension recorded in an existing
// store's sidecar. Returns 0 when no sidecar exists (fresh start).
func ReadStoredDimensions(indexPath string) (int, error) {
	meta, err := loadSidecar(indexPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		// loadSidecar wraps the error; look at the file directly.
		if _, statErr := os.Stat(indexPath + ".meta"); os.IsNotExist(statErr) {
			return 0, nil
		}
		return 0, err
	}
	return meta.Dimensions, nil
}
