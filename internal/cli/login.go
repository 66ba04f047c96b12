package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/oauth2"

	"github.com/brporter/remoteview/internal/auth"
	"github.com/brporter/remoteview/internal/config"
)

const loginProvider = "farm"

// Login runs the device code flow against the configured issuer, verifies
// the returned ID token and caches the tokens.
func Login(ctx context.Context, cfg config.AuthConfig, out io.Writer, openBrowser bool) error {
	if cfg.Issuer == "" {
		return errors.New("no issuer configured, set auth.issuer or REMOTEVIEW_AUTH_ISSUER")
	}
	if cfg.ClientID == "" {
		return errors.New("no client ID configured, set auth.client_id or REMOTEVIEW_AUTH_CLIENT_ID")
	}

	verifier := auth.NewVerifier(nil)
	if err := verifier.AddProvider(ctx, auth.ProviderConfig{
		Name:     loginProvider,
		Issuer:   cfg.Issuer,
		ClientID: cfg.ClientID,
		Scopes:   cfg.Scopes,
	}); err != nil {
		return fmt.Errorf("discover issuer: %w", err)
	}
	conf, _ := verifier.OAuth2Config(loginProvider)

	tok, err := auth.DeviceLogin(ctx, conf, func(da *oauth2.DeviceAuthResponse) {
		uri := da.VerificationURI
		if da.VerificationURIComplete != "" {
			uri = da.VerificationURIComplete
		}
		fmt.Fprintf(out, "\nTo sign in, visit: %s\n", da.VerificationURI)
		fmt.Fprintf(out, "Enter code: %s\n\n", da.UserCode)
		fmt.Fprintf(out, "Waiting for authentication...\n")
		if openBrowser {
			openBrowserFn(uri)
		}
	})
	if err != nil {
		return err
	}

	idToken := auth.IDToken(tok)
	if idToken != "" {
		id, err := verifier.VerifyToken(ctx, idToken)
		if err != nil {
			return fmt.Errorf("verify id token: %w", err)
		}
		fmt.Fprintf(out, "Signed in as %s\n", displayName(id))
	}

	if err := config.SaveTokenCache(&config.TokenCache{
		IDToken:      idToken,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Issuer:       cfg.Issuer,
	}); err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	fmt.Fprintf(out, "Authenticated successfully!\n")
	return nil
}

func displayName(id *auth.Identity) string {
	if id.Email != "" {
		return id.Email
	}
	return id.Sub
}
