// Package api serves the extraction pipeline over a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hurttlocker/langextract/internal/ingest"
	"github.com/hurttlocker/langextract/internal/metrics"
	"github.com/hurttlocker/langextract/internal/orchestrator"
	"github.com/hurttlocker/langextract/internal/speech"
	"github.com/hurttlocker/langextract/internal/store"
)

// DefaultMaxBodyBytes bounds JSON bodies and uploads.
const DefaultMaxBodyBytes = 16 << 20

// Transcriber turns an uploaded audio file into text. *speech.Client
// satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename, language string) (*speech.Result, error)
}

// ServerConfig holds the collaborators of the API server. Store and Speech
// are optional; the endpoints that need them answer 503 without them.
type ServerConfig struct {
	Orchestrator *orchestrator.Orchestrator
	Store        store.Store
	Ingest       *ingest.Engine
	Speech       Transcriber
	Addr         string
	MaxBodyBytes int64
	// Info is merged into the /api/health response.
	Info map[string]any
}

// Server is the HTTP API.
type Server struct {
	cfg ServerConfig
	mux *http.ServeMux
}

// NewServer registers every route.
func NewServer(cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Ingest == nil {
		cfg.Ingest = ingest.NewEngine(cfg.MaxBodyBytes)
	}
	s := &Server{cfg: cfg, mux: http.NewServeMux()}

	s.handle("GET /api/health", s.handleHealth)
	s.handle("GET /api/schemas", s.handleSchemas)
	s.handle("GET /api/domains", s.handleDomains)

	s.handle("POST /api/extract", s.handleExtract)
	s.handle("POST /api/extract_file", s.handleExtractFile)
	s.handle("POST /api/analyze", s.handleAnalyze)
	s.handle("POST /api/chat", s.handleChat)
	s.handle("POST /api/report", s.handleReport)
	s.handle("POST /api/transcribe", s.handleTranscribe)

	s.handle("GET /api/runs", s.handleRuns)
	s.handle("GET /api/runs/{id}", s.handleRun)
	s.handle("GET /api/runs/{id}/report", s.handleRunReport)
	return s
}

// handle registers h under pattern and records each request in the tool
// metrics, labelled by the pattern. Responses of 400 and above count as
// failures.
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		done := metrics.TimeTool(pattern)
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		done(sw.code < http.StatusBadRequest)
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Handler returns the routes wrapped in permissive CORS.
func (s *Server) Handler() http.Handler {
	return withCORS(s.mux)
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down api: %w", err)
		}
		return nil
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Error("api request failed", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// readJSON decodes a bounded request body into v.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body", ingest.ErrTooLarge)
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}
