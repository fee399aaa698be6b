// Package server exposes the JSON documents of a data directory over HTTP.
//
// Each document maps to <dataDir>/<name>.json and is accessed through one
// shared [jsonfile.Pool], so concurrent requests for the same document go
// through one instance and one lock.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"time"

	"github.com/maruel/jsonfile"
)

// maxDocumentSize bounds PUT bodies.
const maxDocumentSize = 4 << 20

var errInvalidName = errors.New("invalid document name")

// nameRe accepts simple flat names. No path separators, so a request can
// never escape the data directory; no leading dot, so temp and hidden files
// stay unreachable.
var nameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Server serves the documents under one data directory.
type Server struct {
	dataDir string
	pool    *jsonfile.Pool
	limiter *limiter
}

// New creates a Server storing documents under dataDir, rate limiting each
// client IP to rps requests per second with the given burst.
func New(dataDir string, rps float64, burst int) *Server {
	return &Server{
		dataDir: dataDir,
		pool:    jsonfile.NewPool(),
		limiter: newLimiter(rps, burst),
	}
}

// Pool returns the pool backing the server, so the caller can flush it on
// shutdown.
func (s *Server) Pool() *jsonfile.Pool {
	return s.pool
}

// Handler returns the routed HTTP handler wrapped in logging and rate
// limiting middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/documents/{name}", s.handleGet)
	mux.HandleFunc("PUT /api/documents/{name}", s.handlePut)
	mux.HandleFunc("POST /api/documents/{name}/reload", s.handleReload)
	mux.HandleFunc("POST /api/sync", s.handleSync)
	return s.logRequests(s.rateLimit(mux))
}

// open resolves a document name to its shared file, creating an empty object
// document on first access.
func (s *Server) open(name string) (*jsonfile.File, error) {
	if !nameRe.MatchString(name) {
		return nil, errInvalidName
	}
	return s.pool.Load(filepath.Join(s.dataDir, name+".json"), &jsonfile.Options{
		Default: map[string]any{},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f, err := s.open(name)
	if err != nil {
		s.writeDocError(w, r, name, err)
		return
	}
	writeJSON(w, http.StatusOK, f.Value())
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "request body too large")
		return
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORMAT", "body is not valid JSON")
		return
	}
	f, err := s.open(name)
	if err != nil {
		s.writeDocError(w, r, name, err)
		return
	}
	f.Set(v)
	if err := f.Save(); err != nil {
		slog.ErrorContext(r.Context(), "Failed to save document", "name", name, "err", err)
		writeError(w, http.StatusInternalServerError, "STORAGE_ERROR", "failed to save document")
		return
	}
	writeJSON(w, http.StatusOK, f.Value())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f, err := s.open(name)
	if err != nil {
		s.writeDocError(w, r, name, err)
		return
	}
	if err := f.Reload(true); err != nil {
		slog.ErrorContext(r.Context(), "Failed to reload document", "name", name, "err", err)
		writeError(w, http.StatusInternalServerError, "STORAGE_ERROR", "failed to reload document")
		return
	}
	writeJSON(w, http.StatusOK, f.Value())
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.Sync(); err != nil {
		slog.ErrorContext(r.Context(), "Failed to sync documents", "err", err)
		writeError(w, http.StatusInternalServerError, "STORAGE_ERROR", "failed to sync documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeDocError(w http.ResponseWriter, r *http.Request, name string, err error) {
	if errors.Is(err, errInvalidName) {
		writeError(w, http.StatusBadRequest, "INVALID_FORMAT", "invalid document name")
		return
	}
	slog.ErrorContext(r.Context(), "Failed to open document", "name", name, "err", err)
	writeError(w, http.StatusInternalServerError, "STORAGE_ERROR", "failed to open document")
}

// errorResponse is the error body shape: {"error": {"code": ..., "message": ...}}.
type errorResponse struct {
	Error errorDetails `json:"error"`
}

type errorDetails struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: errorDetails{Code: code, Message: msg}})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		slog.InfoContext(r.Context(), "HTTP",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"dur", time.Since(start).Round(time.Microsecond))
	})
}
