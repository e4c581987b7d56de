package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/nightvault/nightvault/internal/tokensource"
)

func TestFileTokenStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := AuthConfig{Storage: TokenStorageTypeFile}.NewTokenStore(dir)
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	ctx := t.Context()

	if _, err := store.Read(ctx); !errors.Is(err, tokensource.ErrNotAuthenticated) {
		t.Fatalf("Read() on empty store error = %v, want ErrNotAuthenticated", err)
	}

	token := &oauth2.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}
	if err := store.Write(ctx, token); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "token.json"))
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}

	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.AccessToken != token.AccessToken || got.RefreshToken != token.RefreshToken {
		t.Errorf("Read() = %+v, want %+v", got, token)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := store.Read(ctx); !errors.Is(err, tokensource.ErrNotAuthenticated) {
		t.Fatalf("Read() after Clear() error = %v, want ErrNotAuthenticated", err)
	}
	// Clearing an already empty store is not an error.
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
}

func TestEnvTokenStore(t *testing.T) {
	store, err := AuthConfig{Storage: TokenStorageTypeEnv}.NewTokenStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	ctx := t.Context()

	t.Setenv(EnvRefreshToken, "")
	if _, err := store.Read(ctx); !errors.Is(err, tokensource.ErrNotAuthenticated) {
		t.Fatalf("Read() without env var error = %v, want ErrNotAuthenticated", err)
	}

	t.Setenv(EnvRefreshToken, "refresh-from-env")
	token, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if token.RefreshToken != "refresh-from-env" {
		t.Errorf("RefreshToken = %q", token.RefreshToken)
	}
	if token.Valid() {
		t.Error("env token reports valid, want refresh required")
	}

	if err := store.Write(ctx, token); !errors.Is(err, ErrReadOnlyTokenStore) {
		t.Errorf("Write() error = %v, want ErrReadOnlyTokenStore", err)
	}
	if err := store.Clear(ctx); !errors.Is(err, ErrReadOnlyTokenStore) {
		t.Errorf("Clear() error = %v, want ErrReadOnlyTokenStore", err)
	}
}

func TestNewTokenStoreUnknownBackend(t *testing.T) {
	if _, err := (AuthConfig{Storage: "vault"}).NewTokenStore(t.TempDir()); err == nil {
		t.Fatal("NewTokenStore() succeeded for unknown backend, want error")
	}
}
