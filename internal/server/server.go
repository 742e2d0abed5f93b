// Package server exposes the indexer over HTTP: query, health,
// dependency inspection and config reload. Error variants map to
// status codes; the body is a JSON error envelope.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/codechat/codechatd/internal/config"
	cerrors "github.com/codechat/codechatd/internal/errors"
	"github.com/codechat/codechatd/internal/indexer"
)

// defaultK is the result count when a query omits k.
const defaultK = 5

// Server is the HTTP front end of the daemon.
type Server struct {
	indexer *indexer.Indexer
	cfg     *config.Holder
	httpSrv *http.Server
}

// New creates a Server for the given indexer and config holder.
func New(idx *indexer.Indexer, cfg *config.Holder) *Server {
	return &Server{indexer: idx, cfg: cfg}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /deps", s.handleDeps)
	mux.HandleFunc("POST /admin/reload-config", s.handleReloadConfig)
	return mux
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", slog.String("addr", addr))
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type errorDetail struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorEnvelope{Error: errorDetail{Code: code, Msg: msg}})
}

// writeIndexError maps error categories to HTTP status codes.
func writeIndexError(w http.ResponseWriter, err error) {
	category := cerrors.GetCategory(err)
	code := cerrors.GetCode(err)
	if code == "" {
		code = cerrors.ErrCodeInternal
	}

	status := http.StatusInternalServerError
	switch category {
	case cerrors.CategoryValidation:
		status = http.StatusBadRequest
	case cerrors.CategoryNotFound:
		status = http.StatusNotFound
	case cerrors.CategoryEmbed:
		status = http.StatusBadGateway
	}

	writeError(w, status, code, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequest struct {
	Text string `json:"text"`
	K    int    `json:"k"`
}

type queryResult struct {
	Path  string  `json:"path"`
	Score float32 `json:"score"`
}

type queryResponse struct {
	Results []queryResult `json:"results"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, cerrors.ErrCodeInvalidInput, "invalid request payload")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, cerrors.ErrCodeInvalidInput, "text is required")
		return
	}
	if req.K <= 0 {
		req.K = defaultK
	}

	results, err := s.indexer.Query(r.Context(), req.Text, req.K)
	if err != nil {
		slog.Error("query failed", slog.String("error", err.Error()))
		writeIndexError(w, cerrors.EmbedError("query embedding failed", err))
		return
	}

	resp := queryResponse{Results: make([]queryResult, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, queryResult{Path: res.Path, Score: res.Score})
	}
	writeJSON(w, http.StatusOK, resp)
}

type depsResponse struct {
	Path    string   `json:"path"`
	Scope   string   `json:"scope"`
	Dir     string   `json:"dir"`
	Results []string `json:"results"`
}

func (s *Server) handleDeps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawPath := q.Get("path")
	scope := q.Get("scope")
	dir := q.Get("dir")
	if scope == "" {
		scope = "direct"
	}
	if dir == "" {
		dir = "deps"
	}

	if rawPath == "" {
		writeError(w, http.StatusBadRequest, cerrors.ErrCodeInvalidInput, "path is required")
		return
	}
	if scope != "direct" && scope != "all" {
		writeError(w, http.StatusBadRequest, cerrors.ErrCodeInvalidInput, "scope must be direct or all")
		return
	}
	if dir != "deps" && dir != "dependents" {
		writeError(w, http.StatusBadRequest, cerrors.ErrCodeInvalidInput, "dir must be deps or dependents")
		return
	}

	g := s.indexer.Graph()

	id := filepath.ToSlash(rawPath)
	if filepath.IsAbs(rawPath) {
		id = g.IDFor(rawPath)
		if filepath.IsAbs(id) {
			writeError(w, http.StatusBadRequest, cerrors.ErrCodeInvalidPath, "path is outside the project root")
			return
		}
	}
	if strings.HasPrefix(id, "../") {
		writeError(w, http.StatusBadRequest, cerrors.ErrCodeInvalidPath, "path is outside the project root")
		return
	}

	if !g.Contains(id) {
		writeError(w, http.StatusNotFound, cerrors.ErrCodeUnknownID, "file is not in the dependency graph")
		return
	}

	var results []string
	switch {
	case scope == "direct" && dir == "deps":
		results = g.DirectDeps(id)
	case scope == "direct" && dir == "dependents":
		results = g.DirectDependents(id)
	case scope == "all" && dir == "deps":
		results = g.AllDeps(id)
	default:
		results = g.AllDependents(id)
	}

	writeJSON(w, http.StatusOK, depsResponse{Path: id, Scope: scope, Dir: dir, Results: results})
}

func (s *Server) handleReloadConfig(w http.ResponseWriter, _ *http.Request) {
	slog.Info("reloading configuration")
	if err := s.cfg.Reload(); err != nil {
		slog.Error("config reload failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, cerrors.ErrCodeConfigInvalid, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "configuration reloaded"})
}
