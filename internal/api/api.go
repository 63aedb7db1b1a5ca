// Package api provides the HTTP surface of serve mode: health, metrics, job
// triggers and the notification acknowledge/resolve lifecycle.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/api/health"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

// Config contains HTTP server configuration.
type Config struct {
	Address string
	Verbose bool
	// Version is reported by /healthz.
	Version string
	// Now is the clock used for acknowledge/resolve timestamps.
	Now func() time.Time
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Jobs runs rule jobs by name. *jobs.Service satisfies it.
type Jobs interface {
	Names() []string
	Run(ctx context.Context, name string, force bool) (alerting.Snapshot, error)
}

// Server is the HTTP API server.
type Server struct {
	config  Config
	storage storage.Storage
	jobs    Jobs
	log     *slog.Logger
	health  *health.Handler
	server  *http.Server
}

// New creates a server.
func New(cfg Config, store storage.Storage, jobs Jobs, log *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if jobs == nil {
		return nil, fmt.Errorf("jobs are required")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg.SetDefaults()

	s := &Server{
		config:  cfg,
		storage: store,
		jobs:    jobs,
		log:     log.With(slog.String("component", "api")),
		health:  health.NewHandler(cfg.Version, 5*time.Second),
	}
	s.health.Add("storage", health.Ping(store))

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Job runs answer synchronously and can take minutes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.log.Info("HTTP API listening", slog.String("addr", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
