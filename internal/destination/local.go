package destination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalDir stores backup files as plain files in a directory.
type LocalDir struct {
	dir string
}

var _ Destination = (*LocalDir)(nil)

// NewLocalDir creates a local destination rooted at dir, creating it when
// missing.
func NewLocalDir(dir string) (*LocalDir, error) {
	if dir == "" {
		return nil, errors.New("local destination directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}
	return &LocalDir{dir: dir}, nil
}

// Kind returns KindLocal.
func (d *LocalDir) Kind() Kind {
	return KindLocal
}

// Store writes content to name within the directory. The write goes through
// a temp file so a crash never leaves a truncated backup behind.
func (d *LocalDir) Store(ctx context.Context, name string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := filepath.Join(d.dir, filepath.Base(name))

	tmp, err := os.CreateTemp(d.dir, ".nightvault-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, content); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("writing backup file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("setting backup permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing backup file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("placing backup file: %w", err)
	}

	return filepath.Base(name), nil
}

// Retrieve opens the named backup file.
func (d *LocalDir) Retrieve(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(d.dir, filepath.Base(ref)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening backup file: %w", err)
	}
	return f, nil
}

// List returns the directory's regular files.
func (d *LocalDir) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}
		entries = append(entries, Entry{
			Ref:       de.Name(),
			Name:      de.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	return entries, nil
}

// Remove deletes the named backup file.
func (d *LocalDir) Remove(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(d.dir, filepath.Base(ref)))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("removing backup file: %w", err)
	}
	return nil
}
