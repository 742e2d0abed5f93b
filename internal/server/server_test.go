package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codechat/codechatd/internal/config"
	"github.com/codechat/codechatd/internal/embed"
	"github.com/codechat/codechatd/internal/indexer"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	root := t.TempDir()
	files := map[string]string{
		"a.py": "import b",
		"b.py": "import c",
		"c.py": "",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}

	idx, err := indexer.New(indexer.Config{
		Root:       root,
		CacheDir:   t.TempDir(),
		Dimensions: 64,
		Embedder:   embed.NewStaticEmbedder(64),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.BuildIndex(context.Background()))

	cfgPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"log_level":"info"}`), 0o600))
	holder, err := config.NewHolder(cfgPath)
	require.NoError(t, err)

	return New(idx, holder), root
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Query(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/query", `{"text":"import b","k":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []struct {
			Path  string  `json:"path"`
			Score float32 `json:"score"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 2)
}

func TestServer_QueryValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/query", `{"k":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/query", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope struct {
		Error struct {
			Code string `json:"code"`
			Msg  string `json:"msg"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.NotEmpty(t, envelope.Error.Code)
}

func TestServer_Deps(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/deps?path=a.py", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Path    string   `json:"path"`
		Results []string `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a.py", resp.Path)
	assert.Equal(t, []string{"b.py"}, resp.Results)
}

func TestServer_DepsTransitiveAndDependents(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/deps?path=a.py&scope=all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Results []string `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"b.py", "c.py"}, resp.Results)

	rec = doRequest(t, s, http.MethodGet, "/deps?path=c.py&scope=all&dir=dependents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"a.py", "b.py"}, resp.Results)
}

func TestServer_DepsErrors(t *testing.T) {
	s, root := newTestServer(t)

	// Unknown id -> 404
	rec := doRequest(t, s, http.MethodGet, "/deps?path=missing.py", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Path outside root -> 400
	rec = doRequest(t, s, http.MethodGet, "/deps?path=/etc/passwd", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/deps?path=../escape.py", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown scope/dir -> 400
	rec = doRequest(t, s, http.MethodGet, "/deps?path=a.py&scope=sometimes", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/deps?path=a.py&dir=sideways", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing path -> 400
	rec = doRequest(t, s, http.MethodGet, "/deps", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Absolute path inside the root is accepted
	rec = doRequest(t, s, http.MethodGet, "/deps?path="+filepath.Join(root, "a.py"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ReloadConfig(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/admin/reload-config", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["message"], "reloaded")
}
