// Package catalog persists an index of created backups in SQLite so list and
// restore operations do not depend on the destination being reachable.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates no backup with the given ID exists.
var ErrNotFound = errors.New("catalog: backup not found")

// Backup is one recorded backup run.
type Backup struct {
	ID              string
	Category        string
	Name            string
	DestinationKind string
	Ref             string
	Size            int64
	SHA256          string
	CreatedAt       time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS backups (
	id               TEXT PRIMARY KEY,
	category         TEXT NOT NULL,
	name             TEXT NOT NULL,
	destination_kind TEXT NOT NULL,
	ref              TEXT NOT NULL,
	size             INTEGER NOT NULL,
	sha256           TEXT NOT NULL,
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS backups_category_created
	ON backups (category, created_at DESC);
`

// Store persists backup records in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the catalog at path and bootstraps the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("catalog path is required")
	}

	// modernc's driver takes pragmas in _pragma=name(value) form; the
	// mattn-style _journal_mode keys are silently dropped.
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping catalog db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("bootstrap catalog schema: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record inserts one backup record.
func (s *Store) Record(ctx context.Context, b Backup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.ID == "" {
		return fmt.Errorf("backup id is required")
	}
	if b.Category == "" {
		return fmt.Errorf("backup category is required")
	}

	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO backups (id, category, name, destination_kind, ref, size, sha256, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Category, b.Name, b.DestinationKind, b.Ref, b.Size, b.SHA256, toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("insert backup record: %w", err)
	}
	return nil
}

// List returns backups newest first. An empty category returns every record.
func (s *Store) List(ctx context.Context, category string) ([]Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := `SELECT id, category, name, destination_kind, ref, size, sha256, created_at
		FROM backups`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query backups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var backups []Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backups: %w", err)
	}

	return backups, nil
}

// Get returns the backup with the given ID.
func (s *Store) Get(ctx context.Context, id string) (Backup, error) {
	if err := ctx.Err(); err != nil {
		return Backup{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT id, category, name, destination_kind, ref, size, sha256, created_at
		FROM backups WHERE id = ?`, id)

	b, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Backup{}, ErrNotFound
	}
	if err != nil {
		return Backup{}, err
	}
	return b, nil
}

// Delete removes the backup record with the given ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete backup record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete backup record: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBackup(row scanner) (Backup, error) {
	var b Backup
	var createdAt int64
	err := row.Scan(&b.ID, &b.Category, &b.Name, &b.DestinationKind, &b.Ref, &b.Size, &b.SHA256, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Backup{}, err
	}
	if err != nil {
		return Backup{}, fmt.Errorf("scan backup record: %w", err)
	}
	b.CreatedAt = fromMillis(createdAt)
	return b, nil
}
