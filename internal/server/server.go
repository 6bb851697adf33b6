// Package server serves a built documentation tree for preview and renders
// single diagrams over HTTP.
//
// Routes:
//
//	GET  /healthz     liveness probe
//	POST /api/render  diagram text in the body, repeated "option" query
//	                  parameters; responds with the PNG image
//	POST /api/build   rebuilds the tree and responds with a JSON summary
//	GET  /*           files from the build output directory, except the
//	                  build state directory
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/matzehuels/ditaadoc/pkg/ditaa"
	"github.com/matzehuels/ditaadoc/pkg/errors"
	"github.com/matzehuels/ditaadoc/pkg/observability"
	"github.com/matzehuels/ditaadoc/pkg/pipeline"
)

const (
	// RequestIDHeader carries the request ID on every response.
	RequestIDHeader = "X-Request-ID"

	// StatusHeader reports how /api/render produced the image.
	StatusHeader = "X-Ditaa-Status"

	// MaxDiagramBytes bounds the /api/render body.
	MaxDiagramBytes = 1 << 20

	shutdownTimeout = 5 * time.Second
)

type ctxKey struct{}

// RequestID returns the request ID assigned by the server, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Server is the preview server.
type Server struct {
	builder *ditaa.Builder
	runner  *pipeline.Runner
	source  string
	prefix  string
	logger  *log.Logger

	buildMu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPrefix sets the image name prefix used by /api/render.
func WithPrefix(prefix string) Option {
	return func(s *Server) { s.prefix = prefix }
}

// WithBuild enables POST /api/build, rebuilding source with runner.
func WithBuild(runner *pipeline.Runner, source string) Option {
	return func(s *Server) {
		s.runner = runner
		s.source = source
	}
}

// New creates a server rendering with b and serving b's output directory.
func New(b *ditaa.Builder, opts ...Option) *Server {
	s := &Server{
		builder: b,
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/render", s.handleRender)
		r.Post("/build", s.handleBuild)
	})
	r.Handle("/*", s.static())
	return r
}

// static serves the build output, hiding the build state directory.
func (s *Server) static() http.Handler {
	files := http.FileServer(http.Dir(s.builder.Config().OutDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name != "" {
			if err := errors.ValidatePath(name); err != nil {
				http.Error(w, errors.UserMessage(err), http.StatusBadRequest)
				return
			}
			if first, _, _ := strings.Cut(name, "/"); first == pipeline.StateDir {
				http.NotFound(w, r)
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving", "addr", addr, "dir", s.builder.Config().OutDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(errors.ErrCodeNetwork, err, "listen on %s", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := RequestID(r.Context())
		hooks := observability.HTTP()
		hooks.OnRequest(r.Context(), id, r.Method, r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		hooks.OnResponse(r.Context(), id, r.Method, r.URL.Path, status, duration)
		s.logger.Debug("request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", duration)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"tool_failed": s.builder.Failed(),
	})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxDiagramBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			http.Error(w, "diagram too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "cannot read request body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "diagram text is required", http.StatusBadRequest)
		return
	}
	if !utf8.Valid(body) {
		http.Error(w, "diagram text must be UTF-8", http.StatusBadRequest)
		return
	}

	// Each request renders with its own sticky flag so one bad diagram does
	// not turn later requests into skips.
	res, err := s.builder.Fork().Render(r.Context(), ditaa.Request{
		Code:    string(body),
		Options: r.URL.Query()["option"],
		Prefix:  s.prefix,
	})
	if err != nil {
		s.writeRenderError(w, r, err)
		return
	}
	if res.Status == ditaa.StatusSkipped {
		w.Header().Set(StatusHeader, res.Status.String())
		http.Error(w, "ditaa is not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set(StatusHeader, res.Status.String())
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, res.AbsPath)
}

func (s *Server) writeRenderError(w http.ResponseWriter, r *http.Request, err error) {
	var renderErr *ditaa.RenderError
	switch {
	case stderrors.As(err, &renderErr):
		http.Error(w, renderErr.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, errors.ErrCodeInvalidOption):
		http.Error(w, errors.UserMessage(err), http.StatusBadRequest)
	case errors.Is(err, errors.ErrCodeTimeout):
		http.Error(w, errors.UserMessage(err), http.StatusGatewayTimeout)
	default:
		s.logger.Error("render failed", "id", RequestID(r.Context()), "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type buildResponse struct {
	RunID    string   `json:"run_id"`
	Built    []string `json:"built"`
	Skipped  int      `json:"skipped"`
	Warnings int      `json:"warnings"`
	Duration string   `json:"duration"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		http.Error(w, "builds are disabled", http.StatusNotFound)
		return
	}
	if !s.buildMu.TryLock() {
		http.Error(w, "a build is already running", http.StatusConflict)
		return
	}
	defer s.buildMu.Unlock()

	res, err := s.runner.Build(r.Context(), pipeline.Options{
		Source: s.source,
		Force:  r.URL.Query().Get("force") == "true",
	})
	if err != nil {
		s.logger.Error("build failed", "id", RequestID(r.Context()), "err", err)
		http.Error(w, errors.UserMessage(err), http.StatusInternalServerError)
		return
	}
	built := res.Built
	if built == nil {
		built = []string{}
	}
	writeJSON(w, http.StatusOK, buildResponse{
		RunID:    res.RunID,
		Built:    built,
		Skipped:  res.Skipped,
		Warnings: len(res.Warnings),
		Duration: res.Duration.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
