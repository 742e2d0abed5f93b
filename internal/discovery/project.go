package discovery

import (
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// projectFileName is the optional per-project settings file read from
// the project root.
const projectFileName = ".codechat.yaml"

// ProjectIgnores holds extra ignore patterns from .codechat.yaml.
// Patterns use path.Match syntax and are tested against the
// root-relative slash path and against each path component.
type ProjectIgnores struct {
	Patterns []string
}

// projectFile is the on-disk schema of .codechat.yaml.
type projectFile struct {
	Ignore []string `yaml:"ignore"`
}

// LoadProjectIgnores reads .codechat.yaml from the root. A missing
// file yields an empty set; a malformed file is logged and ignored.
func LoadProjectIgnores(root string) *ProjectIgnores {
	p := &ProjectIgnores{}

	data, err := os.ReadFile(filepath.Join(root, projectFileName))
	if err != nil {
		return p
	}

	var pf projectFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		slog.Warn("malformed project settings file, ignoring",
			slog.String("file", projectFileName),
			slog.String("error", err.Error()))
		return p
	}

	p.Patterns = pf.Ignore
	return p
}

// Match reports whether the root-relative slash path matches any
// pattern. Directory patterns may end in "/".
func (p *ProjectIgnores) Match(rel string) bool {
	if p == nil || len(p.Patterns) == 0 {
		return false
	}

	rel = strings.TrimSuffix(rel, "/")
	components := strings.Split(rel, "/")

	for _, pattern := range p.Patterns {
		pattern = strings.TrimSuffix(pattern, "/")
		if pattern == "" {
			continue
		}
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		for _, component := range components {
			if ok, _ := path.Match(pattern, component); ok {
				return true
			}
		}
	}
	return false
}
