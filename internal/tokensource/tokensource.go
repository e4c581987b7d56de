package tokensource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNotAuthenticated indicates no stored token exists; the user must run the
// login flow first.
var ErrNotAuthenticated = errors.New("not authenticated: run 'nightvault auth login'")

// TokenStore persists OAuth2 tokens across runs. Read returns
// ErrNotAuthenticated when no token is stored.
type TokenStore interface {
	Read(ctx context.Context) (*oauth2.Token, error)
	Write(ctx context.Context, token *oauth2.Token) error
	Clear(ctx context.Context) error
}

// NewTokenSource returns an auto-refreshing oauth2.TokenSource seeded from
// store. Refreshed tokens are written back so the stored access token stays
// usable across process restarts.
func NewTokenSource(ctx context.Context, clientID string, store TokenStore) (oauth2.TokenSource, error) {
	token, err := store.Read(ctx)
	if err != nil {
		return nil, err
	}

	config := &oauth2.Config{
		ClientID: clientID,
		Endpoint: Endpoint,
		Scopes:   scopes,
	}

	// ReuseTokenSource serves the cached token until expiry, then delegates
	// to the refresh flow.
	source := oauth2.ReuseTokenSource(token, config.TokenSource(ctx, token))

	return &persistingTokenSource{
		ctx:        ctx,
		store:      store,
		source:     source,
		lastAccess: token.AccessToken,
	}, nil
}

// persistingTokenSource writes rotated tokens back to the store.
type persistingTokenSource struct {
	ctx    context.Context
	store  TokenStore
	source oauth2.TokenSource

	mu         sync.Mutex
	lastAccess string
}

// Token returns a valid token, persisting it when refresh produced a new one.
func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.source.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token.AccessToken != s.lastAccess {
		if err := s.store.Write(s.ctx, token); err != nil {
			// A failed persist is not fatal for the current request; the next
			// run will refresh again.
			slog.WarnContext(s.ctx, "failed to persist rotated token", "error", err)
			return token, nil
		}
		s.lastAccess = token.AccessToken
	}

	return token, nil
}
