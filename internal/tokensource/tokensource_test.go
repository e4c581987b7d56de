package tokensource

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// memoryTokenStore is an in-memory TokenStore for tests.
type memoryTokenStore struct {
	token  *oauth2.Token
	writes int
}

func (m *memoryTokenStore) Read(ctx context.Context) (*oauth2.Token, error) {
	if m.token == nil {
		return nil, ErrNotAuthenticated
	}
	return m.token, nil
}

func (m *memoryTokenStore) Write(ctx context.Context, token *oauth2.Token) error {
	m.token = token
	m.writes++
	return nil
}

func (m *memoryTokenStore) Clear(ctx context.Context) error {
	m.token = nil
	return nil
}

func TestNewTokenSourceNotAuthenticated(t *testing.T) {
	_, err := NewTokenSource(context.Background(), "client-1", &memoryTokenStore{})
	if err != ErrNotAuthenticated {
		t.Errorf("NewTokenSource() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestTokenSourceServesCachedToken(t *testing.T) {
	store := &memoryTokenStore{token: &oauth2.Token{
		AccessToken:  "cached",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}}

	source, err := NewTokenSource(context.Background(), "client-1", store)
	if err != nil {
		t.Fatalf("NewTokenSource() error: %v", err)
	}

	token, err := source.Token()
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if token.AccessToken != "cached" {
		t.Errorf("AccessToken = %q, want cached token", token.AccessToken)
	}
	if store.writes != 0 {
		t.Errorf("store writes = %d, want 0 for unexpired token", store.writes)
	}
}

func TestTokenSourceRefreshesAndPersists(t *testing.T) {
	var lastGrant string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		lastGrant = r.PostForm.Get("grant_type")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "rotated", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer server.Close()
	withEndpoint(t, oauth2.Endpoint{AuthURL: server.URL + "/auth", TokenURL: server.URL + "/token"})

	store := &memoryTokenStore{token: &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Minute),
	}}

	source, err := NewTokenSource(context.Background(), "client-1", store)
	if err != nil {
		t.Fatalf("NewTokenSource() error: %v", err)
	}

	token, err := source.Token()
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}

	if token.AccessToken != "rotated" {
		t.Errorf("AccessToken = %q, want rotated token", token.AccessToken)
	}
	if lastGrant != "refresh_token" {
		t.Errorf("grant_type = %q, want refresh_token", lastGrant)
	}
	if store.writes != 1 {
		t.Errorf("store writes = %d, want 1", store.writes)
	}
	if store.token.AccessToken != "rotated" {
		t.Errorf("persisted AccessToken = %q, want rotated token", store.token.AccessToken)
	}

	// A second call reuses the fresh token without another write.
	if _, err := source.Token(); err != nil {
		t.Fatalf("Token() second call error: %v", err)
	}
	if store.writes != 1 {
		t.Errorf("store writes after reuse = %d, want 1", store.writes)
	}
}

// failingWriteStore rejects every persist attempt, as the read-only env
// backend does.
type failingWriteStore struct {
	memoryTokenStore
	writeAttempts int
}

func (f *failingWriteStore) Write(ctx context.Context, token *oauth2.Token) error {
	f.writeAttempts++
	return errors.New("backend is read-only")
}

func TestTokenSourceToleratesPersistFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "rotated", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer server.Close()
	withEndpoint(t, oauth2.Endpoint{AuthURL: server.URL + "/auth", TokenURL: server.URL + "/token"})

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	store := &failingWriteStore{memoryTokenStore: memoryTokenStore{token: &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Minute),
	}}}

	source, err := NewTokenSource(context.Background(), "client-1", store)
	if err != nil {
		t.Fatalf("NewTokenSource() error: %v", err)
	}

	token, err := source.Token()
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if token.AccessToken != "rotated" {
		t.Errorf("AccessToken = %q, want rotated token", token.AccessToken)
	}
	if store.writeAttempts != 1 {
		t.Errorf("write attempts = %d, want 1", store.writeAttempts)
	}
	if !strings.Contains(logs.String(), "failed to persist rotated token") {
		t.Errorf("expected persist warning in logs, got %q", logs.String())
	}
}
