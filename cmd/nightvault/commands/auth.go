package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/nightvault/nightvault/internal/app"
	"github.com/nightvault/nightvault/internal/tokensource"
)

// authCommand returns the 'auth' subcommand for managing Google Drive
// authentication.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Google Drive authentication",
		Commands: []*cli.Command{
			authLoginCommand(),
			authLogoutCommand(),
			authStatusCommand(),
		},
	}
}

func authLoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Login to Google Drive and save credentials",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "manual",
				Usage: "paste the authorization code instead of using the local browser flow",
			},
		},
		Action: authLoginAction,
	}
}

func authLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Logout from Google Drive and clear credentials",
		Action: authLogoutAction,
	}
}

func authStatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the current authentication state",
		Action: authStatusAction,
	}
}

// authLoginAction implements the OAuth login flow for Google Drive.
func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown(ctx)

	if cfg.Auth.Storage == app.TokenStorageTypeEnv {
		return fmt.Errorf("cannot login with env storage (read-only). Configure file or keyring storage")
	}

	store, err := cfg.Auth.NewTokenStore(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	var token *oauth2.Token
	if cmd.Bool("manual") {
		token, err = runManualOAuth(ctx, cfg.Auth.ClientID)
	} else {
		token, err = tokensource.AuthorizeLoopback(ctx, cfg.Auth.ClientID, nil)
	}
	if err != nil {
		return fmt.Errorf("oauth login failed: %w", err)
	}

	if err := store.Write(ctx, token); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Login Successful ===")
	fmt.Println("Token saved to configured storage")
	fmt.Println("Google Drive is now configured and ready to use")

	return nil
}

// authLogoutAction clears the stored Google Drive credentials.
func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown(ctx)

	if cfg.Auth.Storage == app.TokenStorageTypeEnv {
		return fmt.Errorf("cannot logout with env storage (read-only). Configure file or keyring storage")
	}

	store, err := cfg.Auth.NewTokenStore(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Logout Successful ===")
	fmt.Println("Credentials cleared from configured storage")

	return nil
}

// authStatusAction reports whether a usable credential is stored.
func authStatusAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown(ctx)

	store, err := cfg.Auth.NewTokenStore(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	fmt.Printf("Storage backend: %s\n", cfg.Auth.Storage)

	token, err := store.Read(ctx)
	switch {
	case errors.Is(err, tokensource.ErrNotAuthenticated):
		fmt.Println("Status:          not authenticated")
		return nil
	case err != nil:
		return fmt.Errorf("failed to read token: %w", err)
	}

	fmt.Println("Status:          authenticated")
	if token.Valid() {
		fmt.Printf("Access token:    valid until %s\n", token.Expiry.Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Println("Access token:    expired (will refresh on next use)")
	}

	return nil
}

// runManualOAuth performs the copy-paste fallback flow for hosts where no
// browser can reach a loopback listener. The redirect lands on a loopback URL
// nothing listens on; the user copies the failed navigation's full URL back.
func runManualOAuth(ctx context.Context, clientID string) (*oauth2.Token, error) {
	authorizer := tokensource.NewAuthorizer(clientID, tokensource.ManualRedirectURL)

	verifier := oauth2.GenerateVerifier()
	state := oauth2.GenerateVerifier()
	authURL := authorizer.AuthCodeURL(state, verifier)

	fmt.Println("=== Google Drive OAuth Login ===")
	fmt.Println()
	fmt.Printf("1. Visit this URL in a browser (any machine):\n   %s\n\n", authURL)
	fmt.Println("2. Authorize the application")
	fmt.Printf("3. The browser will fail to reach %s - that is expected.\n", tokensource.ManualRedirectURL)
	fmt.Println("4. Copy the full URL from the browser's address bar and paste it here")

	redirectURL, err := readSecureInput(ctx, "\nPaste the redirect URL: ")
	if err != nil {
		return nil, err
	}

	code, err := tokensource.CodeFromRedirect(redirectURL, state)
	if err != nil {
		return nil, err
	}

	token, err := authorizer.Exchange(ctx, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	return token, nil
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, prompt string) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
