// Package discovery enumerates candidate project files honouring
// ignore rules. When the project root lies inside a git working tree,
// git itself is the canonical source of "tracked or untracked but not
// ignored"; otherwise a filtered recursive walk is used.
package discovery

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ignoredComponents is the fixed ignore set applied by the fallback
// walk and by the single-event relevance predicate.
var ignoredComponents = map[string]bool{
	".git":         true,
	".venv":        true,
	"__pycache__":  true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"build":        true,
	"dist":         true,
	"target":       true,
}

// Discovery finds indexable files under a project root.
type Discovery struct {
	root     string
	cacheDir string
	extra    *ProjectIgnores
}

// New creates a Discovery for the given absolute project root. Paths
// under cacheDir are always excluded (the store's own artifacts must
// not index themselves). Per-project extra ignore patterns are read
// from .codechat.yaml at the root when present.
func New(root, cacheDir string) *Discovery {
	return &Discovery{
		root:     root,
		cacheDir: cacheDir,
		extra:    LoadProjectIgnores(root),
	}
}

// Root returns the project root.
func (d *Discovery) Root() string {
	return d.root
}

// Files enumerates candidate files as absolute paths. The git working
// tree is consulted first; on any failure the recursive walk is used.
// Discovery failures degrade, they are never fatal.
func (d *Discovery) Files(ctx context.Context) []string {
	if files, err := d.gitFiles(ctx); err == nil {
		return files
	} else {
		slog.Debug("git discovery unavailable, walking",
			slog.String("root", d.root),
			slog.String("error", err.Error()))
	}
	return d.walkFiles()
}

// gitFiles asks git for tracked plus untracked-but-not-ignored files.
func (d *Discovery) gitFiles(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", d.root,
		"ls-files", "--cached", "--others", "--exclude-standard", "-z")
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range bytes.Split(out, []byte{0}) {
		if len(entry) == 0 {
			continue
		}
		abs := filepath.Join(d.root, string(entry))
		info, err := os.Lstat(abs)
		if err != nil || !info.Mode().IsRegular() {
			// Deleted-but-tracked entries and submodule pointers.
			continue
		}
		if d.underCache(abs) || d.extra.Match(d.relSlash(abs)) {
			continue
		}
		files = append(files, abs)
	}
	return files, nil
}

// walkFiles recursively walks the root applying the fixed ignore set.
func (d *Discovery) walkFiles() []string {
	var files []string

	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			return nil
		}
		if entry.IsDir() {
			if p == d.root {
				return nil
			}
			if ignoredComponents[entry.Name()] || d.underCache(p) || d.extra.Match(d.relSlash(p)+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if d.underCache(p) || d.extra.Match(d.relSlash(p)) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		slog.Warn("file walk failed", slog.String("root", d.root), slog.String("error", err.Error()))
	}

	return files
}

// IsRelevant reports whether a single event path denotes an indexable
// file: under the root, a regular file, not under the cache directory,
// not matched by any ignore rule.
func (d *Discovery) IsRelevant(absPath string) bool {
	rel, err := filepath.Rel(d.root, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	if d.underCache(absPath) {
		return false
	}
	for _, component := range strings.Split(filepath.ToSlash(rel), "/") {
		if ignoredComponents[component] {
			return false
		}
	}
	if d.extra.Match(filepath.ToSlash(rel)) {
		return false
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// InRoot reports whether the path lies under the project root,
// regardless of whether it currently exists. Used for delete events.
func (d *Discovery) InRoot(absPath string) bool {
	rel, err := filepath.Rel(d.root, absPath)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	for _, component := range strings.Split(filepath.ToSlash(rel), "/") {
		if ignoredComponents[component] {
			return false
		}
	}
	return !d.underCache(absPath)
}

func (d *Discovery) underCache(absPath string) bool {
	if d.cacheDir == "" {
		return false
	}
	rel, err := filepath.Rel(d.cacheDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (d *Discovery) relSlash(absPath string) string {
	rel, err := filepath.Rel(d.root, absPath)
	if err != nil {
		return filepath.ToSlash(absPath)
	}
	return filepath.ToSlash(rel)
}
