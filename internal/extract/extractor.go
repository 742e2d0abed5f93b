// Package extract provides per-language syntactic extraction of raw
// import strings using tree-sitter parsers with language-specific
// structural queries.
package extract

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// compiledLanguage pairs a grammar with its compiled query.
type compiledLanguage struct {
	name     string
	language *sitter.Language
	query    *sitter.Query
}

// Extractor returns the set of raw import strings textually present in
// a file. Extraction is tolerant: unreadable files, unknown suffixes
// and parse errors all degrade to the empty set.
type Extractor struct {
	bySuffix  map[string]*compiledLanguage
	languages []*compiledLanguage
}

// New compiles the static language table. A definition whose query
// fails to compile is logged and excluded; the remaining languages
// stay functional.
func New() *Extractor {
	e := &Extractor{
		bySuffix: make(map[string]*compiledLanguage),
	}

	for _, def := range languageTable() {
		query, err := sitter.NewQuery([]byte(def.Query), def.Language)
		if err != nil {
			slog.Warn("language query failed to compile, language disabled",
				slog.String("language", def.Name),
				slog.String("error", err.Error()))
			continue
		}

		cl := &compiledLanguage{
			name:     def.Name,
			language: def.Language,
			query:    query,
		}
		e.languages = append(e.languages, cl)
		for _, suffix := range def.Suffixes {
			e.bySuffix[suffix] = cl
		}
	}

	return e
}

// Supports reports whether the path's suffix maps to a known language.
func (e *Extractor) Supports(path string) bool {
	_, ok := e.bySuffix[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Languages returns the names of the successfully compiled languages.
func (e *Extractor) Languages() []string {
	names := make([]string, 0, len(e.languages))
	for _, cl := range e.languages {
		names = append(names, cl.name)
	}
	return names
}

// Imports reads the file and returns its raw import strings. Files
// with an unknown suffix yield the empty set; read failures are logged
// and yield the empty set; partial parse trees yield whatever captures
// succeeded.
func (e *Extractor) Imports(ctx context.Context, path string) map[string]struct{} {
	imports := make(map[string]struct{})

	cl, ok := e.bySuffix[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return imports
	}

	source, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("failed to read file for import extraction",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return imports
	}

	return e.importsFromSource(ctx, cl, source)
}

// importsFromSource extracts raw imports from in-memory source bytes.
func (e *Extractor) importsFromSource(ctx context.Context, cl *compiledLanguage, source []byte) map[string]struct{} {
	imports := make(map[string]struct{})

	// A parser per call keeps extraction safe for concurrent callers;
	// compiled queries are shared and read-only after construction.
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(cl.language)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil || tree == nil {
		slog.Debug("parse failed", slog.String("language", cl.name))
		return imports
	}
	defer tree.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(cl.query, tree.RootNode())

	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, source)
		for _, capture := range match.Captures {
			if cl.query.CaptureNameForId(capture.Index) != "import" {
				continue
			}
			text := capture.Node.Content(source)
			if text == "" {
				continue
			}
			if cleaned := cleanCapture(text); cleaned != "" {
				imports[cleaned] = struct{}{}
			}
		}
	}

	return imports
}

// cleanCapture strips surrounding single or double quotes from a
// captured span. Angle brackets of C/C++ system includes are kept;
// they are informative.
func cleanCapture(text string) string {
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return text[1 : len(text)-1]
		}
	}
	return text
}
