package discovery

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func relPaths(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestDiscovery_WalkSkipsIgnoredComponents(t *testing.T) {
	// Given: a non-git tree with ignored directories
	root := t.TempDir()
	writeFile(t, root, "main.py", "")
	writeFile(t, root, "src/app.py", "")
	writeFile(t, root, "node_modules/lib/index.js", "")
	writeFile(t, root, "__pycache__/main.cpython-312.pyc", "")
	writeFile(t, root, "build/out.o", "")
	writeFile(t, root, ".venv/bin/activate", "")

	d := New(root, "")
	files := relPaths(t, root, d.Files(context.Background()))

	// Then: only the real sources are discovered
	assert.ElementsMatch(t, []string{"main.py", "src/app.py"}, files)
}

func TestDiscovery_WalkExcludesCacheDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.py", "")
	writeFile(t, root, ".cache/codechat/index.hnsw", "")

	d := New(root, filepath.Join(root, ".cache", "codechat"))
	files := relPaths(t, root, d.Files(context.Background()))

	assert.ElementsMatch(t, []string{"main.py"}, files)
}

func TestDiscovery_GitWorkingTree(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	// Given: a git working tree with a .gitignore
	root := t.TempDir()
	writeFile(t, root, "tracked.py", "")
	writeFile(t, root, "untracked.py", "")
	writeFile(t, root, "secret.log", "")
	writeFile(t, root, ".gitignore", "*.log\n")

	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", root}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init")
	run("add", "tracked.py", ".gitignore")

	d := New(root, "")
	files := relPaths(t, root, d.Files(context.Background()))

	// Then: tracked and untracked-but-not-ignored files appear,
	// ignored files do not
	assert.Contains(t, files, "tracked.py")
	assert.Contains(t, files, "untracked.py")
	assert.NotContains(t, files, "secret.log")
}

func TestDiscovery_IsRelevant(t *testing.T) {
	root := t.TempDir()
	cacheDir := filepath.Join(root, ".cache")
	mainPy := writeFile(t, root, "main.py", "")
	ignored := writeFile(t, root, "node_modules/x.js", "")
	cached := writeFile(t, root, ".cache/index.hnsw", "")

	d := New(root, cacheDir)

	assert.True(t, d.IsRelevant(mainPy))
	assert.False(t, d.IsRelevant(ignored))
	assert.False(t, d.IsRelevant(cached))

	// Directories and missing files are not relevant
	assert.False(t, d.IsRelevant(root))
	assert.False(t, d.IsRelevant(filepath.Join(root, "missing.py")))

	// Paths outside the root are not relevant
	assert.False(t, d.IsRelevant(filepath.Join(t.TempDir(), "other.py")))
}

func TestDiscovery_InRoot(t *testing.T) {
	root := t.TempDir()
	d := New(root, filepath.Join(root, ".cache"))

	// Deleted files are still "in root" for event handling
	assert.True(t, d.InRoot(filepath.Join(root, "gone.py")))
	assert.False(t, d.InRoot(filepath.Join(root, "node_modules", "x.js")))
	assert.False(t, d.InRoot(filepath.Join(root, ".cache", "index.hnsw")))
	assert.False(t, d.InRoot("/somewhere/else.py"))
}

func TestProjectIgnores(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".codechat.yaml", "ignore:\n  - \"*.gen.py\"\n  - vendor/\n")
	writeFile(t, root, "main.py", "")
	writeFile(t, root, "schema.gen.py", "")
	writeFile(t, root, "vendor/dep.py", "")

	d := New(root, "")
	files := relPaths(t, root, d.Files(context.Background()))

	assert.Contains(t, files, "main.py")
	assert.NotContains(t, files, "schema.gen.py")
	assert.NotContains(t, files, "vendor/dep.py")
}

func TestProjectIgnores_MissingFile(t *testing.T) {
	p := LoadProjectIgnores(t.TempDir())
	assert.False(t, p.Match("anything.py"))
}
