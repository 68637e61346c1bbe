// Package server exposes the render orchestrator over HTTP.
//
// Routes:
//
//	POST /chart               render the request in the body
//	GET  /chart?data=...      render from query parameters
//	POST /chart/save          save the request in the body, returns its id
//	GET  /chart/render/{id}   render a saved request (format, width, height overrides)
//	GET  /health              liveness and pool state
//
// Artifacts are returned with their content type, the request fingerprint
// as ETag and X-Cache: HIT or MISS. Errors are JSON objects
// {error, code, message} with a status derived from the error code.
package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/chartcn/pkg/errors"
	"github.com/matzehuels/chartcn/pkg/pipeline"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Runner *pipeline.Runner

	// BaseURL prefixes the url returned by /chart/save.
	BaseURL string

	// Renderer names the backend in /health.
	Renderer string

	MaxBodyBytes int64
	Logger       *log.Logger
}

// ValidateAndSetDefaults checks the options and fills zero fields.
func (o *Options) ValidateAndSetDefaults() error {
	if o.Runner == nil {
		return errors.New(errors.ErrCodeValidation, "server: runner is required")
	}
	if o.Renderer == "" {
		o.Renderer = "chromium"
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return nil
}

// Server is the HTTP transport.
type Server struct {
	runner   *pipeline.Runner
	baseURL  string
	renderer string
	maxBody  int64
	logger   *log.Logger
	started  time.Time
	router   chi.Router
}

// New creates a server with all routes configured.
func New(opts Options) (*Server, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	s := &Server{
		runner:   opts.Runner,
		baseURL:  opts.BaseURL,
		renderer: opts.Renderer,
		maxBody:  opts.MaxBodyBytes,
		logger:   opts.Logger,
		started:  time.Now(),
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(s.recoverer)
	r.Use(cors)

	r.Get("/health", s.handleHealth)
	r.Post("/chart", s.handleRender)
	r.Get("/chart", s.handleRenderQuery)
	r.Post("/chart/save", s.handleSave)
	r.Get("/chart/render/{id}", s.handleRenderByID)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errors.New(errors.ErrCodeNotFound, "route not found: %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{
			Error:   http.StatusText(http.StatusMethodNotAllowed),
			Code:    "METHOD_NOT_ALLOWED",
			Message: r.Method + " is not supported on " + r.URL.Path,
		})
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout. It does not close the runner.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
