package tokensource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// driveCallback simulates the browser: it parses the authorization URL the
// flow produced and issues the redirect request to the loopback listener.
func driveCallback(t *testing.T, mutate func(q url.Values)) func(string) error {
	t.Helper()

	return func(authURL string) error {
		parsed, err := url.Parse(authURL)
		if err != nil {
			return err
		}

		redirect, err := url.Parse(parsed.Query().Get("redirect_uri"))
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("state", parsed.Query().Get("state"))
		q.Set("code", "code-loopback")
		if mutate != nil {
			mutate(q)
		}
		redirect.RawQuery = q.Encode()

		// The callback request happens concurrently with the flow's wait.
		go func() {
			resp, err := http.Get(redirect.String())
			if err != nil {
				t.Errorf("callback request failed: %v", err)
				return
			}
			_ = resp.Body.Close()
		}()
		return nil
	}
}

func TestAuthorizeLoopback(t *testing.T) {
	var form url.Values
	server := fakeTokenEndpoint(t, &form)
	defer server.Close()
	withEndpoint(t, oauth2.Endpoint{AuthURL: server.URL + "/auth", TokenURL: server.URL + "/token"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := AuthorizeLoopback(ctx, "client-1", driveCallback(t, nil))
	if err != nil {
		t.Fatalf("AuthorizeLoopback() error: %v", err)
	}

	if token.RefreshToken != "refresh-456" {
		t.Errorf("RefreshToken = %q, want %q", token.RefreshToken, "refresh-456")
	}
	if got := form.Get("code"); got != "code-loopback" {
		t.Errorf("exchanged code = %q, want %q", got, "code-loopback")
	}
	if !strings.HasPrefix(form.Get("redirect_uri"), "http://127.0.0.1:") {
		t.Errorf("redirect_uri = %q, want loopback address", form.Get("redirect_uri"))
	}
}

func TestAuthorizeLoopbackStateMismatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := AuthorizeLoopback(ctx, "client-1", driveCallback(t, func(q url.Values) {
		q.Set("state", "forged")
	}))
	if err == nil || !strings.Contains(err.Error(), "state mismatch") {
		t.Errorf("AuthorizeLoopback() error = %v, want state mismatch", err)
	}
}

func TestAuthorizeLoopbackAccessDenied(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := AuthorizeLoopback(ctx, "client-1", driveCallback(t, func(q url.Values) {
		q.Del("code")
		q.Set("error", "access_denied")
	}))
	if err == nil || !strings.Contains(err.Error(), "access_denied") {
		t.Errorf("AuthorizeLoopback() error = %v, want access_denied", err)
	}
}

func TestAuthorizeLoopbackContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Never deliver a callback; cancel shortly after the flow starts waiting.
	openURL := func(string) error {
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()
		return nil
	}

	_, err := AuthorizeLoopback(ctx, "client-1", openURL)
	if err != context.Canceled {
		t.Errorf("AuthorizeLoopback() error = %v, want context.Canceled", err)
	}
}

func TestAuthorizeLoopbackBrowserFailureIsNonFatal(t *testing.T) {
	var form url.Values
	server := fakeTokenEndpoint(t, &form)
	defer server.Close()
	withEndpoint(t, oauth2.Endpoint{AuthURL: server.URL + "/auth", TokenURL: server.URL + "/token"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inner := driveCallback(t, nil)
	openURL := func(authURL string) error {
		_ = inner(authURL)
		return fmt.Errorf("no browser installed")
	}

	if _, err := AuthorizeLoopback(ctx, "client-1", openURL); err != nil {
		t.Fatalf("AuthorizeLoopback() error: %v, want success despite browser failure", err)
	}
}
