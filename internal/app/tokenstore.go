package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"

	"github.com/nightvault/nightvault/internal/tokensource"
)

const (
	keyringService = "nightvault"
	keyringUser    = "google-drive-oauth"

	// EnvRefreshToken supplies the refresh token for the env storage
	// backend, e.g. in CI or container deployments.
	EnvRefreshToken = "NIGHTVAULT_REFRESH_TOKEN"
)

// ErrReadOnlyTokenStore is returned by write operations on the env backend.
var ErrReadOnlyTokenStore = errors.New("token storage backend is read-only")

// NewTokenStore builds the token store selected by Storage. File tokens live
// under stateDir.
func (c AuthConfig) NewTokenStore(stateDir string) (tokensource.TokenStore, error) {
	switch c.Storage {
	case TokenStorageTypeKeyring:
		return &keyringTokenStore{}, nil
	case TokenStorageTypeFile:
		return &fileTokenStore{path: filepath.Join(stateDir, "token.json")}, nil
	case TokenStorageTypeEnv:
		return &envTokenStore{}, nil
	default:
		return nil, fmt.Errorf("unknown token storage backend %q", c.Storage)
	}
}

// keyringTokenStore persists the token JSON in the OS keyring.
type keyringTokenStore struct{}

var _ tokensource.TokenStore = (*keyringTokenStore)(nil)

func (s *keyringTokenStore) Read(_ context.Context) (*oauth2.Token, error) {
	raw, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, tokensource.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("reading token from keyring: %w", err)
	}
	return unmarshalToken([]byte(raw))
}

func (s *keyringTokenStore) Write(_ context.Context, token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}
	if err := keyring.Set(keyringService, keyringUser, string(raw)); err != nil {
		return fmt.Errorf("writing token to keyring: %w", err)
	}
	return nil
}

func (s *keyringTokenStore) Clear(_ context.Context) error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting token from keyring: %w", err)
	}
	return nil
}

// fileTokenStore persists the token as a 0600 JSON file for hosts without a
// usable keyring, headless servers mostly.
type fileTokenStore struct {
	path string
}

var _ tokensource.TokenStore = (*fileTokenStore)(nil)

func (s *fileTokenStore) Read(_ context.Context) (*oauth2.Token, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, tokensource.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	return unmarshalToken(raw)
}

func (s *fileTokenStore) Write(_ context.Context, token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

func (s *fileTokenStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

// envTokenStore reads a refresh token from the environment. It never holds an
// access token, so the first Drive call always performs a refresh.
type envTokenStore struct{}

var _ tokensource.TokenStore = (*envTokenStore)(nil)

func (s *envTokenStore) Read(_ context.Context) (*oauth2.Token, error) {
	refreshToken := os.Getenv(EnvRefreshToken)
	if refreshToken == "" {
		return nil, tokensource.ErrNotAuthenticated
	}
	return &oauth2.Token{RefreshToken: refreshToken}, nil
}

func (s *envTokenStore) Write(_ context.Context, _ *oauth2.Token) error {
	return ErrReadOnlyTokenStore
}

func (s *envTokenStore) Clear(_ context.Context) error {
	return ErrReadOnlyTokenStore
}

func unmarshalToken(raw []byte) (*oauth2.Token, error) {
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("unmarshaling stored token: %w", err)
	}
	if token.RefreshToken == "" && token.AccessToken == "" {
		return nil, tokensource.ErrNotAuthenticated
	}
	return &token, nil
}
