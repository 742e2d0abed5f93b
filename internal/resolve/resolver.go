// Package resolve converts raw import strings into in-project file
// identifiers. The resolver is deliberately conservative: it prefers
// empty resolution to speculative matches, so external package
// references stay invisible to the dependency graph.
package resolve

import (
	"path"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheSize bounds the memo cache. One entry per distinct
// (raw import, source file) pair seen during a build.
const cacheSize = 8192

// sourceSuffixes are the extensions tried for suffix-less relative
// imports, in order.
var sourceSuffixes = []string{".py", ".ts", ".js", ".jsx", ".tsx"}

// strippedSuffixes are the extensions removed from a raw import before
// project-id comparison.
var strippedSuffixes = []string{".js", ".ts", ".css"}

// knownSuffixes is the set of extensions recognised as source suffixes
// when deciding whether a relative import already names a file.
var knownSuffixes = map[string]bool{
	".py": true, ".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
	".ts": true, ".tsx": true, ".c": true, ".h": true, ".cpp": true,
	".hpp": true, ".cc": true, ".hh": true, ".cxx": true, ".hxx": true,
	".cs": true, ".html": true, ".htm": true, ".css": true,
}

// Resolver maps raw import strings plus a source file id onto sets of
// project file ids. Results are memoised for the life of one build.
type Resolver struct {
	cache *lru.Cache[string, []string]
}

// New creates a resolver with an empty memo cache.
func New() (*Resolver, error) {
	cache, err := lru.New[string, []string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{cache: cache}, nil
}

// Invalidate clears the memo cache. Called at the start of every full
// graph build.
func (r *Resolver) Invalidate() {
	r.cache.Purge()
}

// Resolve returns the project ids the raw import refers to, given the
// source file id and the set of known project ids. The returned slice
// is sorted; empty means the import is external or unresolvable.
func (r *Resolver) Resolve(rawImport, sourceID string, files map[string]struct{}) []string {
	key := rawImport + "\x00" + sourceID
	if cached, ok := r.cache.Get(key); ok {
		return cached
	}

	matches := make(map[string]struct{})

	if isRelative(rawImport) {
		r.resolveRelative(rawImport, sourceID, files, matches)
	} else {
		r.resolveExact(rawImport, files, matches)
		r.resolveLastSegment(rawImport, files, matches)
	}

	// Self-imports are always discarded.
	delete(matches, sourceID)

	result := make([]string, 0, len(matches))
	for id := range matches {
		result = append(result, id)
	}
	sort.Strings(result)

	r.cache.Add(key, result)
	return result
}

func isRelative(raw string) bool {
	return strings.HasPrefix(raw, ".") || strings.HasPrefix(raw, "/")
}

// resolveRelative handles imports that begin with a dot or slash.
// Leading dots encode the ascent: one dot stays in the source file's
// directory, each further dot ascends a level. Candidates are bounded
// by the project root; a cleaned path escaping it is discarded.
func (r *Resolver) resolveRelative(raw, sourceID string, files map[string]struct{}, matches map[string]struct{}) {
	srcDir := path.Dir(sourceID)
	if srcDir == "." {
		srcDir = ""
	}

	// Slash-separated imports are plain relative paths; "./" and
	// "../" segments resolve through path.Clean. Anything that climbs
	// out of the project root is discarded.
	if strings.Contains(raw, "/") {
		base := path.Clean(path.Join(srcDir, strings.TrimPrefix(raw, "/")))
		if base == "." || base == ".." || strings.HasPrefix(base, "../") {
			return
		}
		r.tryCandidates(base, files, matches)
		return
	}

	// Dot-separated (python-style) relative imports: one leading dot
	// stays in the source directory, each further dot ascends a level.
	dots := 0
	for dots < len(raw) && raw[dots] == '.' {
		dots++
	}

	dir := srcDir
	for i := 0; i < max(0, dots-1); i++ {
		if dir == "" {
			// Already at the project root; further ascent would
			// escape it.
			return
		}
		dir = path.Dir(dir)
		if dir == "." {
			dir = ""
		}
	}

	remainder := strings.TrimLeft(raw, ".")

	if remainder == "" {
		// "." or ".." style import: the target is the package
		// directory itself.
		candidate := "__init__.py"
		if dir != "" {
			candidate = path.Join(dir, "__init__.py")
		}
		if _, ok := files[candidate]; ok {
			matches[candidate] = struct{}{}
		}
		return
	}

	// Remaining dots separate package segments.
	base := path.Clean(path.Join(dir, strings.ReplaceAll(remainder, ".", "/")))
	if base == "." || base == ".." || strings.HasPrefix(base, "../") {
		return
	}
	r.tryCandidates(base, files, matches)
}

// tryCandidates tests a root-relative base path against the known file
// set: the exact path when it already carries a recognised suffix,
// otherwise the base with each source suffix plus the package-style
// __init__.py form.
func (r *Resolver) tryCandidates(base string, files map[string]struct{}, matches map[string]struct{}) {
	var candidates []string
	if knownSuffixes[path.Ext(base)] {
		candidates = []string{base}
	} else {
		for _, suffix := range sourceSuffixes {
			candidates = append(candidates, base+suffix)
		}
		candidates = append(candidates, path.Join(base, "__init__.py"))
	}

	for _, candidate := range candidates {
		if _, ok := files[candidate]; ok {
			matches[candidate] = struct{}{}
		}
	}
}

// resolveExact matches the raw import against whole project ids with
// their suffix removed. A bare single-segment import only ever matches
// a root-level id: "utils" must not link to every utils.* in the tree.
func (r *Resolver) resolveExact(raw string, files map[string]struct{}, matches map[string]struct{}) {
	stripped := stripImportSuffix(raw)
	if stripped == "" {
		return
	}

	// Dotted module paths compare as slash-separated paths. Imports
	// that already carry slashes are used as-is.
	candidate := stripped
	if !strings.Contains(candidate, "/") {
		candidate = strings.ReplaceAll(candidate, ".", "/")
	}

	for id := range files {
		if trimSuffix(id) == candidate {
			matches[id] = struct{}{}
		}
	}
}

// resolveLastSegment matches dotted absolute imports by their final
// segment against file base names. Deliberately inclusive: colliding
// base names all match.
func (r *Resolver) resolveLastSegment(raw string, files map[string]struct{}, matches map[string]struct{}) {
	stripped := stripImportSuffix(raw)
	if !strings.Contains(stripped, ".") {
		return
	}

	last := stripped[strings.LastIndex(stripped, ".")+1:]
	if last == "" {
		return
	}

	for id := range files {
		if trimSuffix(path.Base(id)) == last {
			matches[id] = struct{}{}
		}
	}
}

// stripImportSuffix removes a trailing .js/.ts/.css extension for
// comparison purposes.
func stripImportSuffix(raw string) string {
	for _, suffix := range strippedSuffixes {
		if strings.HasSuffix(raw, suffix) {
			return strings.TrimSuffix(raw, suffix)
		}
	}
	return raw
}

// trimSuffix removes the file extension from an id.
func trimSuffix(id string) string {
	ext := path.Ext(id)
	return strings.TrimSuffix(id, ext)
}
