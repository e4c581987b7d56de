// Package app wires configuration, storage, destinations, and the status
// server into a runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nightvault/nightvault/internal/backup"
	"github.com/nightvault/nightvault/internal/catalog"
	"github.com/nightvault/nightvault/internal/prefs"
	"github.com/nightvault/nightvault/internal/server"
	"github.com/nightvault/nightvault/internal/tokensource"
)

// App orchestrates the lifecycle of the status server and the backup
// scheduler, and hands one-shot commands their service dependencies.
type App struct {
	cfg *Config

	prefsStore   *prefs.Store
	catalogStore *catalog.Store
	tokenStore   tokensource.TokenStore
	backups      *backup.Service
	server       *server.Server
	health       *Health
}

// New opens the state stores and builds the service graph. Callers must
// Close the returned App.
func New(cfg *Config) (*App, error) {
	prefsStore, err := prefs.Open(filepath.Join(cfg.StateDir, "prefs.json"))
	if err != nil {
		return nil, fmt.Errorf("opening preference store: %w", err)
	}

	catalogStore, err := catalog.Open(filepath.Join(cfg.StateDir, "catalog.db"))
	if err != nil {
		return nil, fmt.Errorf("opening backup catalog: %w", err)
	}

	tokenStore, err := cfg.Auth.NewTokenStore(cfg.StateDir)
	if err != nil {
		catalogStore.Close()
		return nil, err
	}

	resolver := newDestinationResolver(cfg, prefsStore, tokenStore)
	backups := backup.NewService(catalogStore, prefsStore, resolver)
	health := NewHealth()

	return &App{
		cfg:          cfg,
		prefsStore:   prefsStore,
		catalogStore: catalogStore,
		tokenStore:   tokenStore,
		backups:      backups,
		server:       server.New(backups, prefsStore, cfg.CategorySources(), health),
		health:       health,
	}, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() *Config { return a.cfg }

// Backups returns the backup service for one-shot command use.
func (a *App) Backups() *backup.Service { return a.backups }

// Prefs returns the preference store.
func (a *App) Prefs() *prefs.Store { return a.prefsStore }

// Catalog returns the backup catalog.
func (a *App) Catalog() *catalog.Store { return a.catalogStore }

// TokenStore returns the configured token storage backend.
func (a *App) TokenStore() tokensource.TokenStore { return a.tokenStore }

// Close releases the state stores.
func (a *App) Close() error {
	return a.catalogStore.Close()
}

// Start starts the status server (and the scheduler when configured) and
// blocks until shutdown is triggered. Uses errgroup for runtime error
// monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	interval, err := a.cfg.SchedulerInterval()
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	slog.InfoContext(gCtx, "starting status server")
	serverErrCh, err := a.server.Start(gCtx, a.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("status server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.server.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "status server runtime error", "error", err)
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if interval > 0 {
		slog.InfoContext(gCtx, "starting backup scheduler", "interval", interval.String())
		g.Go(func() error {
			a.runScheduler(gCtx, interval)
			return nil
		})
	}

	a.health.SetReady(true)

	runtimeErr := g.Wait()
	a.health.SetReady(false)

	slog.InfoContext(gCtx, "shutting down services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// runScheduler runs a backup for every category on each tick. Failures are
// logged, not fatal; the next tick retries.
func (a *App) runScheduler(ctx context.Context, interval time.Duration) {
	categories := make([]string, 0, len(a.cfg.Backup.Categories))
	for name := range a.cfg.Backup.Categories {
		categories = append(categories, name)
	}
	sort.Strings(categories)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, category := range categories {
				source := a.cfg.Backup.Categories[category].Source
				record, err := a.backups.Create(ctx, category, source)
				if err != nil {
					slog.ErrorContext(ctx, "scheduled backup failed",
						"category", category, "error", err)
					continue
				}
				slog.InfoContext(ctx, "scheduled backup complete",
					"category", category, "name", record.Name)
			}
		}
	}
}
