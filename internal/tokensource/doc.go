// Package tokensource provides OAuth2 token acquisition and automatic refresh
// for Google Drive.
//
// nightvault is a public OAuth2 client (RFC 8252 native app): there is no
// client secret, and authorization codes are protected with PKCE (RFC 7636).
// The redirect is received on a short-lived loopback listener instead of a
// registered public endpoint.
//
// # Authorization Flow
//
// Use AuthorizeLoopback for the full browser-based flow:
//
//	token, err := tokensource.AuthorizeLoopback(ctx, clientID, nil)
//	// Persist token via an app token store.
//
// The function binds 127.0.0.1:0, opens the authorization URL in the user's
// browser, waits for exactly one redirect, validates the state parameter, and
// exchanges the authorization code using the PKCE verifier.
//
// For environments where the authorizing browser cannot reach the listener,
// Authorizer plus CodeFromRedirect drive a manual flow: the user authorizes
// against ManualRedirectURL (nothing listens there), then pastes the failed
// redirect's full URL back, which carries the code and state.
//
// # Token Sources
//
// NewTokenSource wraps a stored token in an auto-refreshing oauth2.TokenSource
// that writes rotated tokens back to the store, so long-lived daemons survive
// access-token expiry without re-authorization.
package tokensource
