package tokensource

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// Endpoint is Google's OAuth2 endpoint. Declared literally rather than pulled
// from an SDK so the module's only Google surface is plain REST.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// scopes limits access to files created by this application. Full-drive
// access is never requested.
var scopes = []string{
	"https://www.googleapis.com/auth/drive.file",
}

// ManualRedirectURL is the loopback redirect used by the manual copy/paste
// flow. Google rejects the old urn:ietf:wg:oauth:2.0:oob target, so the
// fallback authorizes against a fixed loopback URL with no listener bound:
// the browser's connection failure is expected, and the user pastes the full
// redirect URL (which carries code and state) back into the terminal.
const ManualRedirectURL = "http://127.0.0.1:8642/callback"

// CodeFromRedirect extracts the authorization code from a pasted redirect
// URL, applying the same state and error checks the loopback listener does.
func CodeFromRedirect(rawURL, state string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parsing redirect URL: %w", err)
	}

	query := parsed.Query()

	if authErr := query.Get("error"); authErr != "" {
		return "", fmt.Errorf("authorization refused: %s", authErr)
	}
	if query.Get("state") != state {
		return "", errors.New("state mismatch in redirect URL")
	}
	code := query.Get("code")
	if code == "" {
		return "", errors.New("missing code in redirect URL")
	}

	return code, nil
}

// Authorizer handles the OAuth2 authorization code flow against Google.
// It is a public client: token requests carry no client secret and rely on
// PKCE for code interception protection.
type Authorizer struct {
	config *oauth2.Config
}

// NewAuthorizer creates an authorizer for the given OAuth client redirecting
// to redirectURL.
func NewAuthorizer(clientID, redirectURL string) *Authorizer {
	return &Authorizer{
		config: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURL,
			Scopes:      scopes,
			Endpoint:    Endpoint,
		},
	}
}

// AuthCodeURL generates the authorization URL with an S256 PKCE challenge.
// Caller must persist state and verifier for the callback and Exchange steps.
// access_type=offline and prompt=consent force Google to issue a refresh
// token even for repeat authorizations.
func (a *Authorizer) AuthCodeURL(state, verifier string) string {
	return a.config.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange completes the flow by trading the authorization code for tokens.
// Verifier must be the same value used to build the authorization URL.
func (a *Authorizer) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if code == "" {
		return nil, errors.New("authorization code cannot be empty")
	}
	if verifier == "" {
		return nil, errors.New("verifier cannot be empty")
	}

	token, err := a.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}

	if token.RefreshToken == "" {
		return nil, errors.New("token response contained no refresh token")
	}

	return token, nil
}
