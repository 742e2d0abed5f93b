package extract

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func importSlice(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestExtractor_CoreLanguagesCompile(t *testing.T) {
	e := New()

	langs := e.Languages()
	for _, want := range []string{"python", "javascript", "typescript", "c", "cpp", "css"} {
		assert.Contains(t, langs, want)
	}
}

func TestExtractor_PythonImports(t *testing.T) {
	e := New()
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"simple import", "import os", []string{"os"}},
		{"from import", "from pathlib import Path", []string{"pathlib"}},
		{"dotted", "import os.path", []string{"os.path"}},
		{"from dotted", "from collections.abc import Mapping", []string{"collections.abc"}},
		{"aliased", "import numpy as np", []string{"numpy"}},
		{"relative", "from . import sibling", []string{"."}},
		{"relative dotted", "from ..pkg import thing", []string{"..pkg"}},
		{"multiple", "import os\nimport sys\nimport json", []string{"json", "os", "sys"}},
		{"no imports", "print('hello')", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name+".py", tt.content)
			got := e.Imports(context.Background(), path)
			assert.Equal(t, tt.want, importSlice(got))
		})
	}
}

func TestExtractor_JavaScriptImports(t *testing.T) {
	e := New()
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		want    []string
	}{
		{"default import", "a.js", `import React from "react";`, []string{"react"}},
		{"named import", "b.js", `import { useState } from 'react';`, []string{"react"}},
		{"side-effect import", "c.js", `import "./styles.css";`, []string{"./styles.css"}},
		{"require", "d.js", `const lodash = require("lodash");`, []string{"lodash"}},
		{"star import", "e.js", `import * as utils from "./utils/helper.js";`, []string{"./utils/helper.js"}},
		{"re-export", "f.js", `export { Component } from "some-package";`, []string{"some-package"}},
		{"jsx suffix", "g.jsx", `import App from "./App";`, []string{"./App"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			got := e.Imports(context.Background(), path)
			assert.Equal(t, tt.want, importSlice(got))
		})
	}
}

func TestExtractor_TypeScriptImports(t *testing.T) {
	e := New()
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		want    []string
	}{
		{"scoped package", "a.ts", `import { Component } from "@angular/core";`, []string{"@angular/core"}},
		{"type import", "b.ts", `import type { User } from './types';`, []string{"./types"}},
		{"tsx", "c.tsx", `import React from "react";`, []string{"react"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			got := e.Imports(context.Background(), path)
			assert.Equal(t, tt.want, importSlice(got))
		})
	}
}

func TestExtractor_CIncludes(t *testing.T) {
	e := New()
	dir := t.TempDir()

	// Quotes are stripped; angle brackets are informative and kept.
	path := writeFile(t, dir, "main.cpp", "#include <vector>\n#include \"utils.hpp\"\n")
	got := e.Imports(context.Background(), path)
	assert.Equal(t, []string{"<vector>", "utils.hpp"}, importSlice(got))

	path = writeFile(t, dir, "main.c", "#include <stdio.h>\n#include \"my_header.h\"\n")
	got = e.Imports(context.Background(), path)
	assert.Equal(t, []string{"<stdio.h>", "my_header.h"}, importSlice(got))
}

func TestExtractor_CSSImports(t *testing.T) {
	e := New()
	dir := t.TempDir()

	path := writeFile(t, dir, "theme.css", "@import \"base.css\";\n")
	got := e.Imports(context.Background(), path)
	assert.Equal(t, []string{"base.css"}, importSlice(got))
}

func TestExtractor_UnknownSuffix(t *testing.T) {
	e := New()
	dir := t.TempDir()

	path := writeFile(t, dir, "data.xyz", "import something")
	got := e.Imports(context.Background(), path)
	assert.Empty(t, got)
	assert.False(t, e.Supports(path))
}

func TestExtractor_UnreadableFile(t *testing.T) {
	e := New()

	got := e.Imports(context.Background(), filepath.Join(t.TempDir(), "missing.py"))
	assert.Empty(t, got)
}

func TestExtractor_MalformedSourceIsTolerated(t *testing.T) {
	e := New()
	dir := t.TempDir()

	// Partial trees yield whatever captures succeeded; never fatal.
	path := writeFile(t, dir, "broken.py", "import os\nimport \nfrom  \ninvalid syntax here\n")
	got := e.Imports(context.Background(), path)
	assert.Contains(t, got, "os")
}
