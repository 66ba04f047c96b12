package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ProviderConfig holds OIDC configuration for a single identity provider.
type ProviderConfig struct {
	Name     string
	Issuer   string
	ClientID string
	Scopes   []string
}

// ErrNoToken is returned when no auth token is provided.
var ErrNoToken = errors.New("no authentication token provided")

// Identity represents a verified user.
type Identity struct {
	Provider string
	Sub      string
	Email    string
}

// Verifier validates ID tokens from one or more OIDC issuers.
type Verifier struct {
	mu        sync.RWMutex
	providers map[string]*providerEntry
	logger    *slog.Logger
}

type providerEntry struct {
	config   ProviderConfig
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewVerifier creates a multi-provider token verifier.
func NewVerifier(logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		providers: make(map[string]*providerEntry),
		logger:    logger,
	}
}

// AddProvider discovers an issuer and registers it under cfg.Name.
func (v *Verifier) AddProvider(ctx context.Context, cfg ProviderConfig) error {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return fmt.Errorf("discover OIDC provider %s: %w", cfg.Name, err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	v.mu.Lock()
	defer v.mu.Unlock()
	v.providers[cfg.Name] = &providerEntry{
		config:   cfg,
		provider: provider,
		verifier: verifier,
	}

	v.logger.Info("OIDC provider registered", "name", cfg.Name, "issuer", cfg.Issuer)
	return nil
}

// VerifyToken verifies an ID token against every registered provider and
// returns the identity from the first that accepts it.
func (v *Verifier) VerifyToken(ctx context.Context, rawToken string) (*Identity, error) {
	if rawToken == "" {
		return nil, ErrNoToken
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	var lastErr error
	for name, entry := range v.providers {
		idToken, err := entry.verifier.Verify(ctx, rawToken)
		if err != nil {
			lastErr = err
			continue
		}

		var claims struct {
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			v.logger.Debug("read id token claims", "provider", name, "err", err)
		}

		return &Identity{
			Provider: name,
			Sub:      idToken.Subject,
			Email:    claims.Email,
		}, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("token verification failed: %w", lastErr)
	}
	return nil, errors.New("no OIDC providers configured")
}

// GetProvider returns the config for a named provider.
func (v *Verifier) GetProvider(name string) (ProviderConfig, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, ok := v.providers[name]
	if !ok {
		return ProviderConfig{}, false
	}
	return entry.config, true
}

// OAuth2Config returns a public client configuration for a named provider,
// including its device authorization endpoint when the issuer has one.
func (v *Verifier) OAuth2Config(name string) (*oauth2.Config, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, ok := v.providers[name]
	if !ok {
		return nil, false
	}

	endpoint := entry.provider.Endpoint()
	if endpoint.DeviceAuthURL == "" {
		var claims struct {
			DeviceAuthURL string `json:"device_authorization_endpoint"`
		}
		if err := entry.provider.Claims(&claims); err == nil {
			endpoint.DeviceAuthURL = claims.DeviceAuthURL
		}
	}

	scopes := entry.config.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID}
	}
	return &oauth2.Config{
		ClientID: entry.config.ClientID,
		Endpoint: endpoint,
		Scopes:   scopes,
	}, true
}
