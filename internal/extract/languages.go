package extract

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/html"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageDef describes one supported source language: the file
// suffixes it owns, its grammar, and the structural query whose
// "import" captures are the textually meaningful nodes.
type LanguageDef struct {
	// Name is the language identifier.
	Name string

	// Suffixes are the file extensions owned by this language.
	Suffixes []string

	// Language is the tree-sitter grammar.
	Language *sitter.Language

	// Query captures import-bearing nodes; the capture named "import"
	// designates the textual span to extract.
	Query string
}

const pythonQuery = `
(import_statement name: (dotted_name) @import)
(import_statement name: (aliased_import name: (dotted_name) @import))
(import_from_statement module_name: (dotted_name) @import)
(import_from_statement module_name: (relative_import) @import)
`

// jsQuery covers import declarations, re-exports, and require() calls.
// The same query text compiles against the javascript, typescript and
// tsx grammars.
const jsQuery = `
(import_statement source: (string) @import)
(export_statement source: (string) @import)
(call_expression
  function: (identifier) @fn
  arguments: (arguments (string) @import)
  (#eq? @fn "require"))
`

// cQuery captures #include paths, quoted or angle-bracketed.
const cQuery = `
(preproc_include path: (_) @import)
`

const csharpQuery = `
(using_directive (qualified_name) @import)
(using_directive (identifier) @import)
`

const htmlQuery = `
(element
  (start_tag
    (tag_name) @tag
    (attribute
      (attribute_name) @attr
      (quoted_attribute_value (attribute_value) @import)))
  (#eq? @tag "link")
  (#eq? @attr "href"))
(script_element
  (start_tag
    (attribute
      (attribute_name) @attr
      (quoted_attribute_value (attribute_value) @import)))
  (#eq? @attr "src"))
`

const cssQuery = `
(import_statement (string_value) @import)
(call_expression
  (function_name) @fn
  (arguments (string_value) @import)
  (#eq? @fn "url"))
`

// languageTable is the static set of supported language definitions.
// Evaluated once at extractor construction; a definition whose query
// fails to compile is excluded without affecting the others.
func languageTable() []LanguageDef {
	return []LanguageDef{
		{
			Name:     "python",
			Suffixes: []string{".py"},
			Language: python.GetLanguage(),
			Query:    pythonQuery,
		},
		{
			Name:     "javascript",
			Suffixes: []string{".js", ".jsx", ".mjs", ".cjs"},
			Language: javascript.GetLanguage(),
			Query:    jsQuery,
		},
		{
			Name:     "typescript",
			Suffixes: []string{".ts"},
			Language: typescript.GetLanguage(),
			Query:    jsQuery,
		},
		{
			Name:     "tsx",
			Suffixes: []string{".tsx"},
			Language: tsx.GetLanguage(),
			Query:    jsQuery,
		},
		{
			Name:     "c",
			Suffixes: []string{".c", ".h"},
			Language: c.GetLanguage(),
			Query:    cQuery,
		},
		{
			Name:     "cpp",
			Suffixes: []string{".cpp", ".hpp", ".cc", ".hh", ".cxx", ".hxx"},
			Language: cpp.GetLanguage(),
			Query:    cQuery,
		},
		{
			Name:     "csharp",
			Suffixes: []string{".cs"},
			Language: csharp.GetLanguage(),
			Query:    csharpQuery,
		},
		{
			Name:     "html",
			Suffixes: []string{".html", ".htm"},
			Language: html.GetLanguage(),
			Query:    htmlQuery,
		},
		{
			Name:     "css",
			Suffixes: []string{".css"},
			Language: css.GetLanguage(),
			Query:    cssQuery,
		},
	}
}
