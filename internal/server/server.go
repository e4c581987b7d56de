// Package server exposes the local status API: health probes, backup
// listings, and on-demand backup runs. It binds loopback only; this is an
// operator surface, not a public one.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nightvault/nightvault/internal/backup"
	"github.com/nightvault/nightvault/internal/observability/middleware"
	"github.com/nightvault/nightvault/internal/prefs"
)

// maxRequestBytes bounds request bodies; the API only ever receives tiny
// JSON trigger payloads.
const maxRequestBytes = 1 << 20

// ReadinessChecker reports whether the application is ready to serve.
type ReadinessChecker interface {
	IsReady() bool
}

// Server is the local status API server.
type Server struct {
	httpServer *http.Server

	backups    *backup.Service
	prefsStore *prefs.Store
	categories map[string]string // category name -> backup source path
	readiness  ReadinessChecker
}

// New creates a status server over the given backup service. categories maps
// category names to their backup source paths.
func New(backups *backup.Service, prefsStore *prefs.Store, categories map[string]string, readiness ReadinessChecker) *Server {
	s := &Server{
		backups:    backups,
		prefsStore: prefsStore,
		categories: categories,
		readiness:  readiness,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /livez", livenessHandler())
	mux.Handle("GET /readyz", readinessHandler(readiness))
	mux.Handle("GET /v1/status", http.HandlerFunc(s.handleStatus))
	mux.Handle("GET /v1/backups", http.HandlerFunc(s.handleListBackups))
	mux.Handle("POST /v1/backups", http.HandlerFunc(s.handleCreateBackup))

	handler := applyMiddlewares(mux,
		Recovery,
		middleware.RequestIDGeneration,
		middleware.TraceContextExtraction,
		middleware.Logging(slog.Default()),
		middleware.RequestIDPropagation,
		RequestSizeLimit(maxRequestBytes),
	)

	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Backup runs against Drive can take a while; the write timeout has
		// to cover a full POST /v1/backups round.
		WriteTimeout: 10 * time.Minute,
	}

	return s
}

// Start begins serving on addr. It returns a channel delivering the terminal
// serve error (nil on clean shutdown) and an error when the listener cannot
// be created.
func (s *Server) Start(ctx context.Context, addr string) (<-chan error, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	slog.InfoContext(ctx, "status server listening", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.Serve(listener)
		if err == http.ErrServerClosed {
			err = nil
		}
		errCh <- err
	}()

	return errCh, nil
}

// Shutdown gracefully stops the server, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
