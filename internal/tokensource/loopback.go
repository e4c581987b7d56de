package tokensource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"sync/atomic"

	"golang.org/x/oauth2"
)

// completionPage is shown in the user's browser once the redirect arrives.
const completionPage = `<!DOCTYPE html>
<html>
<head><title>nightvault</title></head>
<body>
<p>Authorization complete. You can close this window and return to the terminal.</p>
</body>
</html>
`

// AuthorizeLoopback performs the full authorization code flow using a one-shot
// HTTP listener on a loopback ephemeral port.
//
// openURL is invoked with the authorization URL; pass nil to use the
// platform's default browser. The URL is always printed as well, so a failed
// browser launch degrades to copy/paste. The listener accepts exactly one
// callback; later requests get 404.
func AuthorizeLoopback(ctx context.Context, clientID string, openURL func(string) error) (*oauth2.Token, error) {
	if openURL == nil {
		openURL = openBrowser
	}

	// Binding port 0 sidesteps ports already held by other local services.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("starting callback listener: %w", err)
	}
	defer func() { _ = listener.Close() }()

	redirectURL := fmt.Sprintf("http://%s/callback", listener.Addr().String())
	authorizer := NewAuthorizer(clientID, redirectURL)

	verifier := oauth2.GenerateVerifier()
	state := oauth2.GenerateVerifier()
	authURL := authorizer.AuthCodeURL(state, verifier)

	tokenCh := make(chan *oauth2.Token, 1)
	errCh := make(chan error, 1)

	var handled atomic.Bool
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/callback" || !handled.CompareAndSwap(false, true) {
				http.NotFound(w, r)
				return
			}

			query := r.URL.Query()

			// Authorization server errors (e.g. access_denied) come back as
			// an error query parameter instead of a code.
			if authErr := query.Get("error"); authErr != "" {
				errCh <- fmt.Errorf("authorization refused: %s", authErr)
				http.Error(w, "authorization refused", http.StatusBadRequest)
				return
			}

			if query.Get("state") != state {
				errCh <- errors.New("state mismatch in callback")
				http.Error(w, "invalid state", http.StatusBadRequest)
				return
			}

			code := query.Get("code")
			if code == "" {
				errCh <- errors.New("missing code in callback")
				http.Error(w, "missing code", http.StatusBadRequest)
				return
			}

			token, err := authorizer.Exchange(r.Context(), code, verifier)
			if err != nil {
				errCh <- err
				http.Error(w, "token exchange failed", http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if _, err := fmt.Fprint(w, completionPage); err != nil {
				slog.WarnContext(r.Context(), "failed to write completion page", "error", err)
			}
			tokenCh <- token
		}),
	}

	go func() { _ = server.Serve(listener) }()
	defer func() { _ = server.Close() }()

	fmt.Printf("Open the following URL in your browser:\n%s\n", authURL)
	if err := openURL(authURL); err != nil {
		slog.DebugContext(ctx, "browser launch failed, falling back to printed URL", "error", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		return nil, err
	case token := <-tokenCh:
		return token, nil
	}
}

// openBrowser launches the platform's default browser for the given URL.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
