package tokensource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

// fakeTokenEndpoint stands in for Google's token endpoint. It records the
// form fields of the last request and serves a canned token response.
func fakeTokenEndpoint(t *testing.T, lastForm *url.Values) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing token request form: %v", err)
		}
		*lastForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "access-123",
			"refresh_token": "refresh-456",
			"token_type": "Bearer",
			"expires_in": 3600
		}`))
	}))
}

// withEndpoint swaps the package endpoint for the test's lifetime.
func withEndpoint(t *testing.T, endpoint oauth2.Endpoint) {
	t.Helper()

	saved := Endpoint
	Endpoint = endpoint
	t.Cleanup(func() { Endpoint = saved })
}

func TestAuthCodeURL(t *testing.T) {
	auth := NewAuthorizer("client-1", "http://127.0.0.1:9999/callback")

	verifier := oauth2.GenerateVerifier()
	rawURL := auth.AuthCodeURL("state-abc", verifier)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parsing auth URL: %v", err)
	}

	query := parsed.Query()
	checks := map[string]string{
		"client_id":             "client-1",
		"state":                 "state-abc",
		"redirect_uri":          "http://127.0.0.1:9999/callback",
		"response_type":         "code",
		"access_type":           "offline",
		"prompt":                "consent",
		"code_challenge_method": "S256",
	}
	for param, want := range checks {
		if got := query.Get(param); got != want {
			t.Errorf("auth URL param %s = %q, want %q", param, got, want)
		}
	}

	if query.Get("code_challenge") == "" {
		t.Error("auth URL missing code_challenge")
	}
	if !strings.Contains(query.Get("scope"), "drive.file") {
		t.Errorf("auth URL scope = %q, want drive.file scope", query.Get("scope"))
	}
}

func TestExchange(t *testing.T) {
	var form url.Values
	server := fakeTokenEndpoint(t, &form)
	defer server.Close()
	withEndpoint(t, oauth2.Endpoint{AuthURL: server.URL + "/auth", TokenURL: server.URL + "/token"})

	auth := NewAuthorizer("client-1", "http://127.0.0.1:9999/callback")

	verifier := oauth2.GenerateVerifier()
	token, err := auth.Exchange(context.Background(), "code-xyz", verifier)
	if err != nil {
		t.Fatalf("Exchange() error: %v", err)
	}

	if token.AccessToken != "access-123" {
		t.Errorf("AccessToken = %q, want %q", token.AccessToken, "access-123")
	}
	if token.RefreshToken != "refresh-456" {
		t.Errorf("RefreshToken = %q, want %q", token.RefreshToken, "refresh-456")
	}

	if got := form.Get("code"); got != "code-xyz" {
		t.Errorf("token request code = %q, want %q", got, "code-xyz")
	}
	if got := form.Get("code_verifier"); got != verifier {
		t.Errorf("token request code_verifier = %q, want the PKCE verifier", got)
	}
	if got := form.Get("grant_type"); got != "authorization_code" {
		t.Errorf("token request grant_type = %q, want authorization_code", got)
	}
}

func TestExchangeValidation(t *testing.T) {
	auth := NewAuthorizer("client-1", "http://127.0.0.1:9999/callback")

	if _, err := auth.Exchange(context.Background(), "", "verifier"); err == nil {
		t.Error("Exchange() with empty code: want error, got nil")
	}
	if _, err := auth.Exchange(context.Background(), "code", ""); err == nil {
		t.Error("Exchange() with empty verifier: want error, got nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := auth.Exchange(ctx, "code", "verifier"); err == nil {
		t.Error("Exchange() with cancelled context: want error, got nil")
	}
}

func TestExchangeRequiresRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "access-only", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer server.Close()
	withEndpoint(t, oauth2.Endpoint{AuthURL: server.URL + "/auth", TokenURL: server.URL + "/token"})

	auth := NewAuthorizer("client-1", "http://127.0.0.1:9999/callback")
	if _, err := auth.Exchange(context.Background(), "code", oauth2.GenerateVerifier()); err == nil {
		t.Error("Exchange() without refresh token in response: want error, got nil")
	}
}

func TestCodeFromRedirect(t *testing.T) {
	const state = "state-1"

	tests := []struct {
		name     string
		rawURL   string
		wantCode string
		wantErr  bool
	}{
		{
			name:     "valid redirect",
			rawURL:   ManualRedirectURL + "?state=state-1&code=auth-code&scope=drive.file",
			wantCode: "auth-code",
		},
		{
			name:     "surrounding whitespace from paste",
			rawURL:   "  " + ManualRedirectURL + "?state=state-1&code=auth-code\n",
			wantCode: "auth-code",
		},
		{
			name:    "state mismatch",
			rawURL:  ManualRedirectURL + "?state=other&code=auth-code",
			wantErr: true,
		},
		{
			name:    "authorization error",
			rawURL:  ManualRedirectURL + "?error=access_denied&state=state-1",
			wantErr: true,
		},
		{
			name:    "missing code",
			rawURL:  ManualRedirectURL + "?state=state-1",
			wantErr: true,
		},
		{
			name:    "not a URL",
			rawURL:  "definitely not\x7f://",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := CodeFromRedirect(tt.rawURL, state)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("CodeFromRedirect(%q) succeeded, want error", tt.rawURL)
				}
				return
			}
			if err != nil {
				t.Fatalf("CodeFromRedirect(%q) error = %v", tt.rawURL, err)
			}
			if code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}
