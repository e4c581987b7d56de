// Package backup implements the backup operations: creating snapshots of a
// category's settings export, listing, restoring with checksum verification,
// and pruning old copies. Where the bytes land is delegated to the
// destination layer.
package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nightvault/nightvault/internal/catalog"
	"github.com/nightvault/nightvault/internal/destination"
	"github.com/nightvault/nightvault/internal/prefs"
)

// ErrChecksumMismatch indicates restored content does not match the checksum
// recorded at backup time.
var ErrChecksumMismatch = errors.New("restored content failed checksum verification")

// DestinationResolver supplies destinations for categories. Implemented by
// the app layer, which owns the Drive client and preference wiring.
type DestinationResolver interface {
	// Active returns the category's currently selected destination.
	Active(ctx context.Context, category string) (destination.Destination, error)
	// ByKind returns the category's destination for a specific backend,
	// regardless of the current selection. Used when operating on catalog
	// records created under an earlier selection.
	ByKind(ctx context.Context, category string, kind destination.Kind) (destination.Destination, error)
}

// Service coordinates backup runs across the catalog, preferences, and
// destinations.
type Service struct {
	catalog  *catalog.Store
	prefs    *prefs.Store
	resolver DestinationResolver

	now func() time.Time
}

// NewService creates a backup service.
func NewService(catalogStore *catalog.Store, prefsStore *prefs.Store, resolver DestinationResolver) *Service {
	return &Service{
		catalog:  catalogStore,
		prefs:    prefsStore,
		resolver: resolver,
		now:      time.Now,
	}
}

// Create snapshots the file at sourcePath into the category's destination and
// records it in the catalog.
func (s *Service) Create(ctx context.Context, category, sourcePath string) (catalog.Backup, error) {
	dest, err := s.resolver.Active(ctx, category)
	if err != nil {
		return catalog.Backup{}, err
	}

	// Settings exports are small; buffering keeps hashing and upload to a
	// single read of the source.
	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return catalog.Backup{}, fmt.Errorf("reading backup source: %w", err)
	}

	sum := sha256.Sum256(content)
	createdAt := s.now().UTC()
	name := backupName(category, sourcePath, createdAt)

	ref, err := dest.Store(ctx, name, bytes.NewReader(content))
	if err != nil {
		return catalog.Backup{}, fmt.Errorf("storing backup: %w", err)
	}

	record := catalog.Backup{
		ID:              uuid.NewString(),
		Category:        category,
		Name:            name,
		DestinationKind: string(dest.Kind()),
		Ref:             ref,
		Size:            int64(len(content)),
		SHA256:          hex.EncodeToString(sum[:]),
		CreatedAt:       createdAt,
	}
	if err := s.catalog.Record(ctx, record); err != nil {
		return catalog.Backup{}, err
	}

	stamp := createdAt.Format(time.RFC3339)
	if err := s.prefs.SetString(prefs.LastBackupAt(category), stamp); err != nil {
		slog.WarnContext(ctx, "failed to record last backup time", "category", category, "error", err)
	}
	if err := s.prefs.SetString(prefs.KeyLastBackupAt, stamp); err != nil {
		slog.WarnContext(ctx, "failed to record last backup time", "error", err)
	}

	slog.InfoContext(ctx, "backup created",
		"category", category,
		"name", name,
		"destination", record.DestinationKind,
		"size", record.Size,
	)

	return record, nil
}

// List returns cataloged backups for category, newest first. An empty
// category lists everything.
func (s *Service) List(ctx context.Context, category string) ([]catalog.Backup, error) {
	return s.catalog.List(ctx, category)
}

// ListDestination returns what actually exists at the category's active
// destination, independent of the catalog. Useful when backups were made from
// another machine against the same Drive folder.
func (s *Service) ListDestination(ctx context.Context, category string) ([]destination.Entry, error) {
	dest, err := s.resolver.Active(ctx, category)
	if err != nil {
		return nil, err
	}
	return dest.List(ctx)
}

// Restore fetches the backup with the given catalog ID, verifies its
// checksum, and writes it to outPath.
func (s *Service) Restore(ctx context.Context, id, outPath string) (catalog.Backup, error) {
	record, err := s.catalog.Get(ctx, id)
	if err != nil {
		return catalog.Backup{}, err
	}

	// Resolve by the kind recorded at backup time; the category may have
	// been repointed since.
	dest, err := s.resolver.ByKind(ctx, record.Category, destination.Kind(record.DestinationKind))
	if err != nil {
		return catalog.Backup{}, err
	}

	body, err := dest.Retrieve(ctx, record.Ref)
	if err != nil {
		return catalog.Backup{}, fmt.Errorf("retrieving backup %s: %w", record.Name, err)
	}
	defer func() { _ = body.Close() }()

	if err := writeVerified(body, record.SHA256, outPath); err != nil {
		return catalog.Backup{}, err
	}

	slog.InfoContext(ctx, "backup restored", "id", record.ID, "name", record.Name, "path", outPath)

	return record, nil
}

// Prune removes the category's oldest backups beyond keep, deleting from
// both the destination and the catalog. Entries already gone from the
// destination are still dropped from the catalog.
func (s *Service) Prune(ctx context.Context, category string, keep int) ([]catalog.Backup, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1, got %d", keep)
	}

	records, err := s.catalog.List(ctx, category)
	if err != nil {
		return nil, err
	}
	if len(records) <= keep {
		return nil, nil
	}

	var removed []catalog.Backup
	for _, record := range records[keep:] {
		dest, err := s.resolver.ByKind(ctx, record.Category, destination.Kind(record.DestinationKind))
		if err != nil {
			return removed, err
		}

		if err := dest.Remove(ctx, record.Ref); err != nil && !errors.Is(err, destination.ErrNotFound) {
			return removed, fmt.Errorf("removing backup %s: %w", record.Name, err)
		}
		if err := s.catalog.Delete(ctx, record.ID); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return removed, err
		}

		slog.InfoContext(ctx, "backup pruned", "id", record.ID, "name", record.Name)
		removed = append(removed, record)
	}

	return removed, nil
}

// backupName builds the destination file name: category, UTC timestamp, and
// the source's extension.
func backupName(category, sourcePath string, createdAt time.Time) string {
	ext := filepath.Ext(sourcePath)
	if ext == "" {
		ext = ".json"
	}
	return fmt.Sprintf("%s_%s%s", category, createdAt.Format("20060102T150405Z"), ext)
}

// writeVerified copies content to outPath, verifying the SHA-256 along the
// way. The target only appears once verification passed.
func writeVerified(content io.Reader, wantSHA256, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o700); err != nil {
		return fmt.Errorf("creating restore directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".restore-*")
	if err != nil {
		return fmt.Errorf("creating restore temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing restored content: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting restore permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing restored file: %w", err)
	}

	if got := hex.EncodeToString(hasher.Sum(nil)); got != wantSHA256 {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, wantSHA256)
	}

	if err := os.Rename(tmp.Name(), outPath); err != nil {
		return fmt.Errorf("placing restored file: %w", err)
	}

	return nil
}
