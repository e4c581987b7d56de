// Package destination abstracts where a backup category's files live: a
// directory on the local machine or an application folder on Google Drive.
// Exactly one destination is active per category; the selection helpers keep
// the underlying preference flags mutually exclusive.
package destination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nightvault/nightvault/internal/prefs"
)

// Kind identifies a destination backend.
type Kind string

const (
	KindLocal Kind = "local"
	KindDrive Kind = "drive"
)

// ErrNotConfigured indicates a category has no destination selected yet.
var ErrNotConfigured = errors.New("destination not configured")

// ErrNotFound indicates the referenced entry does not exist at the destination.
var ErrNotFound = errors.New("entry not found")

// Entry is one stored object at a destination. Ref is the backend-specific
// handle: a file name for local directories, a file ID for Drive.
type Entry struct {
	Ref       string
	Name      string
	Size      int64
	CreatedAt time.Time
}

// Destination stores and retrieves named backup files.
type Destination interface {
	Kind() Kind
	Store(ctx context.Context, name string, content io.Reader) (ref string, err error)
	Retrieve(ctx context.Context, ref string) (io.ReadCloser, error)
	List(ctx context.Context) ([]Entry, error)
	Remove(ctx context.Context, ref string) error
}

// Select marks kind as the category's destination, clearing the other flag so
// at most one of {local, drive} is ever set. A local selection requires the
// directory path.
func Select(store *prefs.Store, category string, kind Kind, localPath string) error {
	switch kind {
	case KindLocal:
		if localPath == "" {
			return errors.New("local destination requires a directory path")
		}
		if err := store.SetString(prefs.LocalDirPath(category), localPath); err != nil {
			return err
		}
		if err := store.SetBool(prefs.UseLocalDir(category), true); err != nil {
			return err
		}
		return store.SetBool(prefs.UseDrive(category), false)
	case KindDrive:
		if err := store.SetBool(prefs.UseDrive(category), true); err != nil {
			return err
		}
		return store.SetBool(prefs.UseLocalDir(category), false)
	default:
		return fmt.Errorf("unknown destination kind %q", kind)
	}
}

// Selected reports the category's active destination kind.
func Selected(store *prefs.Store, category string) (Kind, error) {
	useLocal := store.Bool(prefs.UseLocalDir(category))
	useDrive := store.Bool(prefs.UseDrive(category))

	switch {
	case useLocal && useDrive:
		// Both flags set means the store was edited by hand; refuse to guess.
		return "", fmt.Errorf("category %s: both local and drive flags set", category)
	case useLocal:
		return KindLocal, nil
	case useDrive:
		return KindDrive, nil
	default:
		return "", ErrNotConfigured
	}
}
