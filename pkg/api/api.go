// Package api serves the keywordoor HTTP API: authenticated ingestion
// for mining servers and the read-side dashboard endpoints.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/keywordoor/keywordoor/pkg/api/archive"
	"github.com/keywordoor/keywordoor/pkg/api/projector"
	"github.com/keywordoor/keywordoor/pkg/api/store"
	"github.com/keywordoor/keywordoor/pkg/config"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.APIConfig
	store      store.Store
	archiver   archive.Writer
	projector  projector.Projector
	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.APIConfig,
) Server {
	return &server{
		log: log.WithField("component", "api"),
		cfg: cfg,
	}
}

// Start initializes the store and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	// Create and start the database store.
	s.store = store.NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	// Initialize the report archive if configured.
	if s.cfg.Archive.Enabled {
		if err := s.initArchive(ctx); err != nil {
			return fmt.Errorf("initializing archive: %w", err)
		}
	}

	// Prepare the background projector, but do NOT start it yet: the
	// HTTP server must be listening before the first rebuild runs.
	if s.cfg.Projection.Enabled {
		interval, err := time.ParseDuration(s.cfg.Projection.RefreshInterval)
		if err != nil {
			return fmt.Errorf("parsing projection interval: %w", err)
		}

		s.projector = projector.NewProjector(s.log, s.store, interval)
	}

	// Build router and start HTTP server.
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	// Start the projector AFTER the API is listening so the server is
	// reachable while the first (potentially slow) rebuild runs.
	if s.projector != nil {
		if err := s.projector.Start(ctx); err != nil {
			return fmt.Errorf("starting projector: %w", err)
		}
	}

	return nil
}

// Stop gracefully shuts down the HTTP server and closes the store.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.projector != nil {
		if err := s.projector.Stop(); err != nil {
			s.log.WithError(err).Warn("Projector stop error")
		}
	}

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}

// initArchive creates the configured archive backend and verifies it is
// writable before any report comes in.
func (s *server) initArchive(ctx context.Context) error {
	switch {
	case s.cfg.Archive.S3 != nil && s.cfg.Archive.S3.Bucket != "":
		writer, err := archive.NewS3Writer(s.log, s.cfg.Archive.S3)
		if err != nil {
			return fmt.Errorf("creating s3 writer: %w", err)
		}

		s.archiver = writer

		s.log.Info("S3 report archiving enabled")
	case s.cfg.Archive.Local != nil && s.cfg.Archive.Local.Path != "":
		writer, err := archive.NewLocalWriter(s.log, s.cfg.Archive.Local)
		if err != nil {
			return fmt.Errorf("creating local writer: %w", err)
		}

		s.archiver = writer

		s.log.Info("Local report archiving enabled")
	default:
		return fmt.Errorf("no archive backend configured")
	}

	if err := s.archiver.Preflight(ctx); err != nil {
		return fmt.Errorf("archive preflight: %w", err)
	}

	return nil
}
