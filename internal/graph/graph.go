// Package graph maintains the directed file-to-file dependency graph
// of a project. Nodes are project-relative file identifiers; an edge
// (u, v) means "u imports something resolved to v". Cycles are
// permitted; transitive queries terminate on them.
package graph

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/codechat/codechatd/internal/extract"
	"github.com/codechat/codechatd/internal/resolve"
)

// Graph is the dependency graph. All operations are safe for
// concurrent use; Build atomically replaces the node and edge sets.
type Graph struct {
	mu        sync.RWMutex
	root      string
	extractor *extract.Extractor
	resolver  *resolve.Resolver

	files map[string]string              // id -> absolute path
	out   map[string]map[string]struct{} // id -> direct dependencies
	in    map[string]map[string]struct{} // id -> direct dependents
}

// New creates an empty graph using the given extractor and resolver.
func New(extractor *extract.Extractor, resolver *resolve.Resolver) *Graph {
	return &Graph{
		extractor: extractor,
		resolver:  resolver,
		files:     make(map[string]string),
		out:       make(map[string]map[string]struct{}),
		in:        make(map[string]map[string]struct{}),
	}
}

// Root returns the project root the graph identifies files against.
func (g *Graph) Root() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.root
}

// SetRoot fixes the project root. When empty, Build infers it from the
// longest common directory prefix of its input.
func (g *Graph) SetRoot(root string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.root = root
}

// idFor converts an absolute path into a graph identifier: the
// root-relative path with forward slashes, or the absolute path when
// the file lies outside the root.
func (g *Graph) idFor(absPath string) string {
	if g.root == "" {
		return filepath.ToSlash(absPath)
	}
	rel, err := filepath.Rel(g.root, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(absPath)
	}
	return filepath.ToSlash(rel)
}

// IDFor exposes identifier formation to callers holding the same root.
func (g *Graph) IDFor(absPath string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.idFor(absPath)
}

// Build atomically replaces the graph with one computed from the given
// absolute file paths. When no root has been set, the longest common
// directory prefix of the input is used.
func (g *Graph) Build(ctx context.Context, paths []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.root == "" {
		g.root = commonDir(paths)
	}

	g.files = make(map[string]string, len(paths))
	g.out = make(map[string]map[string]struct{}, len(paths))
	g.in = make(map[string]map[string]struct{}, len(paths))
	g.resolver.Invalidate()

	for _, p := range paths {
		id := g.idFor(p)
		g.files[id] = p
		g.out[id] = make(map[string]struct{})
		g.in[id] = make(map[string]struct{})
	}

	fileSet := g.fileSetLocked()
	for id, abs := range g.files {
		g.addEdgesLocked(ctx, id, abs, fileSet)
	}

	slog.Info("dependency graph built",
		slog.Int("nodes", len(g.files)),
		slog.Int("edges", g.edgeCountLocked()))
}

// AddOrUpdateFile ensures the node exists and recomputes its outgoing
// edges. Incoming edges are left untouched: other files' resolutions
// are only refreshed by a full build.
func (g *Graph) AddOrUpdateFile(ctx context.Context, absPath string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addOrUpdateLocked(ctx, absPath)
}

func (g *Graph) addOrUpdateLocked(ctx context.Context, absPath string) {
	id := g.idFor(absPath)

	g.files[id] = absPath
	if g.out[id] == nil {
		g.out[id] = make(map[string]struct{})
	}
	if g.in[id] == nil {
		g.in[id] = make(map[string]struct{})
	}

	// Drop the node's old outgoing edges before recomputing.
	for dep := range g.out[id] {
		delete(g.in[dep], id)
	}
	g.out[id] = make(map[string]struct{})

	g.addEdgesLocked(ctx, id, absPath, g.fileSetLocked())
}

// RemoveFile removes the node and all incident edges.
func (g *Graph) RemoveFile(absPath string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(g.idFor(absPath))
}

func (g *Graph) removeLocked(id string) {
	if _, ok := g.files[id]; !ok {
		return
	}

	for dep := range g.out[id] {
		delete(g.in[dep], id)
	}
	for dependent := range g.in[id] {
		delete(g.out[dependent], id)
	}
	delete(g.out, id)
	delete(g.in, id)
	delete(g.files, id)
}

// MoveFile transfers a node from old to new. A content-only change
// (identical ids) degrades to AddOrUpdateFile; an unknown old id is
// logged and likewise degrades.
func (g *Graph) MoveFile(ctx context.Context, oldAbs, newAbs string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	oldID := g.idFor(oldAbs)
	newID := g.idFor(newAbs)

	if oldID == newID {
		g.addOrUpdateLocked(ctx, newAbs)
		return
	}

	if _, known := g.files[oldID]; !known {
		slog.Warn("move for unknown file, treating as add",
			slog.String("old", oldID),
			slog.String("new", newID))
	} else {
		g.removeLocked(oldID)
	}
	g.addOrUpdateLocked(ctx, newAbs)
}

// DirectDeps returns the direct dependencies of id, sorted. Unknown
// ids yield an empty slice.
func (g *Graph) DirectDeps(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.out[id])
}

// DirectDependents returns the direct dependents of id, sorted.
func (g *Graph) DirectDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.in[id])
}

// AllDeps returns the transitive dependencies of id, excluding id
// itself, sorted. Terminates on cycles.
func (g *Graph) AllDeps(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reachable(id, g.out)
}

// AllDependents returns the transitive dependents of id, excluding id
// itself, sorted.
func (g *Graph) AllDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reachable(id, g.in)
}

// Contains reports whether id is a node of the graph.
func (g *Graph) Contains(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.files[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.files)
}

// reachable walks edges breadth-first from id, excluding id itself.
func (g *Graph) reachable(id string, edges map[string]map[string]struct{}) []string {
	if _, ok := g.files[id]; !ok {
		return []string{}
	}

	seen := map[string]struct{}{id: {}}
	queue := []string{id}
	var result []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for next := range edges[current] {
			if _, visited := seen[next]; visited {
				continue
			}
			seen[next] = struct{}{}
			result = append(result, next)
			queue = append(queue, next)
		}
	}

	sort.Strings(result)
	return result
}

// addEdgesLocked extracts and resolves the file's imports and adds
// outgoing edges to resolved ids present in the graph. Self-edges are
// never created; edges to unknown ids are dropped, not buffered.
func (g *Graph) addEdgesLocked(ctx context.Context, id, absPath string, fileSet map[string]struct{}) {
	for raw := range g.extractor.Imports(ctx, absPath) {
		for _, dep := range g.resolver.Resolve(raw, id, fileSet) {
			if dep == id {
				continue
			}
			if _, known := g.files[dep]; !known {
				continue
			}
			g.out[id][dep] = struct{}{}
			g.in[dep][id] = struct{}{}
		}
	}
}

func (g *Graph) fileSetLocked() map[string]struct{} {
	set := make(map[string]struct{}, len(g.files))
	for id := range g.files {
		set[id] = struct{}{}
	}
	return set
}

func (g *Graph) edgeCountLocked() int {
	n := 0
	for _, deps := range g.out {
		n += len(deps)
	}
	return n
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// commonDir returns the longest common directory prefix of the given
// absolute paths, or empty when none exists.
func commonDir(paths []string) string {
	if len(paths) == 0 {
		return ""
	}

	common := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		dir := filepath.Dir(p)
		for common != "" && !isUnderOrEqual(dir, common) {
			parent := filepath.Dir(common)
			if parent == common {
				common = ""
				break
			}
			common = parent
		}
	}
	return common
}

func isUnderOrEqual(dir, prefix string) bool {
	if dir == prefix {
		return true
	}
	rel, err := filepath.Rel(prefix, dir)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
