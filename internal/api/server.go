package api

import (
	"context"
	"net/http"
	"time"

	"github.com/flowmail/dashboard/internal/config"
)

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, h *Handlers, opts RouteOptions) *Server {
	if opts.AllowedOrigins == nil {
		opts.AllowedOrigins = cfg.AllowedOrigins
	}
	return &Server{
		config:  cfg,
		handler: SetupRoutes(h, opts),
	}
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	read := time.Duration(s.config.ReadTimeoutSeconds) * time.Second
	if read <= 0 {
		read = 30 * time.Second
	}
	// Campaign sends run inside the request, so the write timeout is
	// usually longer than the read timeout.
	write := time.Duration(s.config.WriteTimeoutSeconds) * time.Second
	if write <= 0 {
		write = 10 * time.Minute
	}
	s.server = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.handler,
		ReadTimeout:       read,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
