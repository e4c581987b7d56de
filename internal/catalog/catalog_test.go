package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testBackup(id, category string, createdAt time.Time) Backup {
	return Backup{
		ID:              id,
		Category:        category,
		Name:            category + "_" + id + ".json",
		DestinationKind: "local",
		Ref:             category + "_" + id + ".json",
		Size:            128,
		SHA256:          "deadbeef",
		CreatedAt:       createdAt,
	}
}

func TestOpenAppliesPragmas(t *testing.T) {
	store := openTestStore(t)

	// The DSN pragma syntax is driver-specific; a wrong form is dropped
	// without error, so verify the settings actually took effect.
	var journalMode string
	if err := store.sqlDB.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("querying journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	var busyTimeout int
	if err := store.sqlDB.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("querying busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", busyTimeout)
	}
}

func TestRecordAndGet(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	created := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	want := testBackup("b1", "settings", created)
	if err := store.Record(ctx, want); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	got, err := store.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestGetNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestRecordValidation(t *testing.T) {
	store := openTestStore(t)

	if err := store.Record(context.Background(), Backup{Category: "settings"}); err == nil {
		t.Error("Record() without ID: want error, got nil")
	}
	if err := store.Record(context.Background(), Backup{ID: "x"}); err == nil {
		t.Error("Record() without category: want error, got nil")
	}
}

func TestListOrderingAndFiltering(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	records := []Backup{
		testBackup("old", "settings", base),
		testBackup("new", "settings", base.Add(48*time.Hour)),
		testBackup("mid", "settings", base.Add(24*time.Hour)),
		testBackup("other", "reports", base.Add(36*time.Hour)),
	}
	for _, b := range records {
		if err := store.Record(ctx, b); err != nil {
			t.Fatalf("Record(%s) error: %v", b.ID, err)
		}
	}

	settings, err := store.List(ctx, "settings")
	if err != nil {
		t.Fatalf("List(settings) error: %v", err)
	}
	if len(settings) != 3 {
		t.Fatalf("List(settings) returned %d records, want 3", len(settings))
	}
	for i, wantID := range []string{"new", "mid", "old"} {
		if settings[i].ID != wantID {
			t.Errorf("List(settings)[%d].ID = %q, want %q (newest first)", i, settings[i].ID, wantID)
		}
	}

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("List() returned %d records, want 4", len(all))
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if err := store.Record(ctx, testBackup("b1", "settings", time.Now())); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	if err := store.Delete(ctx, "b1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := store.Delete(ctx, "b1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrNotFound", err)
	}
}

func TestReopenPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := store.Record(ctx, testBackup("b1", "settings", time.Now())); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() after close error: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if _, err := reopened.Get(ctx, "b1"); err != nil {
		t.Errorf("Get() after reopen error: %v", err)
	}
}
