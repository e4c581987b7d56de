package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/nightvault/nightvault/internal/backup"
	"github.com/nightvault/nightvault/internal/destination"
	"github.com/nightvault/nightvault/internal/drive"
	"github.com/nightvault/nightvault/internal/prefs"
	"github.com/nightvault/nightvault/internal/tokensource"
)

// destinationResolver maps category destination flags to live Destination
// values. The Drive client is built lazily so local-only setups never touch
// the token store.
type destinationResolver struct {
	cfg        *Config
	prefsStore *prefs.Store
	tokenStore tokensource.TokenStore

	mu          sync.Mutex
	driveClient *drive.Client
}

var _ backup.DestinationResolver = (*destinationResolver)(nil)

func newDestinationResolver(cfg *Config, prefsStore *prefs.Store, tokenStore tokensource.TokenStore) *destinationResolver {
	return &destinationResolver{
		cfg:        cfg,
		prefsStore: prefsStore,
		tokenStore: tokenStore,
	}
}

// Active resolves the destination currently selected for category.
func (r *destinationResolver) Active(ctx context.Context, category string) (destination.Destination, error) {
	kind, err := destination.Selected(r.prefsStore, category)
	if err != nil {
		return nil, err
	}
	return r.ByKind(ctx, category, kind)
}

// ByKind resolves a specific destination for category regardless of the
// selection flags. Restores use it to reach the destination a backup was
// recorded against.
func (r *destinationResolver) ByKind(ctx context.Context, category string, kind destination.Kind) (destination.Destination, error) {
	switch kind {
	case destination.KindLocal:
		path := r.prefsStore.String(prefs.LocalDirPath(category))
		if path == "" {
			return nil, fmt.Errorf("category %s: %w", category, destination.ErrNotConfigured)
		}
		return destination.NewLocalDir(path)

	case destination.KindDrive:
		client, err := r.client(ctx)
		if err != nil {
			return nil, err
		}
		folderName := fmt.Sprintf("%s-%s", r.cfg.Backup.DriveFolder, category)
		cachedID := r.prefsStore.String(prefs.DriveFolderID(category))
		dest, err := destination.NewDrive(ctx, client, folderName, cachedID)
		if err != nil {
			return nil, err
		}
		if cachedID == "" {
			if err := r.prefsStore.SetString(prefs.DriveFolderID(category), dest.FolderID()); err != nil {
				return nil, fmt.Errorf("caching drive folder id: %w", err)
			}
		}
		return dest, nil

	default:
		return nil, fmt.Errorf("unknown destination kind %q", kind)
	}
}

func (r *destinationResolver) client(ctx context.Context) (*drive.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.driveClient == nil {
		source, err := tokensource.NewTokenSource(ctx, r.cfg.Auth.ClientID, r.tokenStore)
		if err != nil {
			return nil, err
		}
		r.driveClient = drive.NewClient(source)
	}
	return r.driveClient, nil
}
