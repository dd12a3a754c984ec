// Package server is the HTTP boundary of the redline service: routing,
// bearer auth, JSON error envelopes, and upload handling. All document
// logic lives in the docedit pipeline — handlers here only decode, call,
// and encode.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/redline/docedit"
	"github.com/hazyhaar/redline/obs"
)

// Config configures the HTTP server.
type Config struct {
	// AuthToken is the bearer token required on /v1 routes. Empty disables
	// auth (local development only).
	AuthToken string

	// MaxUploadBytes caps the request body (default: 50 MB).
	MaxUploadBytes int64

	// Logger for request-scoped logging.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 50 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server wires the pipeline to HTTP.
type Server struct {
	cfg      Config
	pipeline *docedit.Pipeline
	recorder *obs.Recorder
}

// New creates a server. recorder may be nil to disable observability.
func New(cfg Config, pipeline *docedit.Pipeline, recorder *obs.Recorder) *Server {
	cfg.defaults()
	return &Server{cfg: cfg, pipeline: pipeline, recorder: recorder}
}

// Routes builds the chi router with the full middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(TraceID(s.cfg.Logger))
	r.Use(s.requestLog)
	r.Use(MaxBody(s.cfg.MaxUploadBytes))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Post("/documents/edit", s.handleEdit)
		r.Post("/documents/validate", s.handleValidate)
	})
	return r
}
