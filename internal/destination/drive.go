package destination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/nightvault/nightvault/internal/drive"
)

// Drive stores backup files in an application folder on Google Drive.
type Drive struct {
	client   *drive.Client
	folderID string
}

var _ Destination = (*Drive)(nil)

// NewDrive creates a Drive destination for the named folder.
// cachedFolderID skips the folder lookup when non-empty; pass the value from
// a previous FolderID call. The first use resolves (or creates) the folder.
func NewDrive(ctx context.Context, client *drive.Client, folderName, cachedFolderID string) (*Drive, error) {
	if cachedFolderID != "" {
		return &Drive{client: client, folderID: cachedFolderID}, nil
	}

	folder, err := client.EnsureFolder(ctx, folderName)
	if err != nil {
		return nil, fmt.Errorf("resolving drive folder: %w", err)
	}

	return &Drive{client: client, folderID: folder.ID}, nil
}

// FolderID returns the resolved Drive folder ID, suitable for caching.
func (d *Drive) FolderID() string {
	return d.folderID
}

// Kind returns KindDrive.
func (d *Drive) Kind() Kind {
	return KindDrive
}

// Store uploads content as name into the application folder.
func (d *Drive) Store(ctx context.Context, name string, content io.Reader) (string, error) {
	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	file, err := d.client.Upload(ctx, d.folderID, name, mimeType, content)
	if err != nil {
		return "", err
	}
	return file.ID, nil
}

// Retrieve downloads the file with the given ID.
func (d *Drive) Retrieve(ctx context.Context, ref string) (io.ReadCloser, error) {
	body, err := d.client.Download(ctx, ref)
	if errors.Is(err, drive.ErrNotFound) {
		return nil, ErrNotFound
	}
	return body, err
}

// List returns the application folder's files.
func (d *Drive) List(ctx context.Context) ([]Entry, error) {
	files, err := d.client.ListFiles(ctx, d.folderID)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		if f.MimeType == drive.FolderMimeType {
			continue
		}
		entries = append(entries, Entry{
			Ref:       f.ID,
			Name:      f.Name,
			Size:      f.Size,
			CreatedAt: f.CreatedTime,
		})
	}

	return entries, nil
}

// Remove deletes the file with the given ID.
func (d *Drive) Remove(ctx context.Context, ref string) error {
	err := d.client.Delete(ctx, ref)
	if errors.Is(err, drive.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
