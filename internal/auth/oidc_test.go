package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brporter/remoteview/internal/auth/authtest"
)

func TestNewVerifier(t *testing.T) {
	v := NewVerifier(nil)
	if _, ok := v.GetProvider("anything"); ok {
		t.Error("expected no providers on a new Verifier")
	}
}

func TestAddProvider_Success(t *testing.T) {
	iss := authtest.NewIssuer(t)
	v := NewVerifier(nil)

	if err := v.AddProvider(context.Background(), providerFor(iss, "test")); err != nil {
		t.Fatalf("AddProvider returned unexpected error: %v", err)
	}

	got, ok := v.GetProvider("test")
	if !ok {
		t.Fatal("provider was not registered after successful AddProvider")
	}
	if got.ClientID != authtest.ClientID {
		t.Errorf("ClientID = %q, want %q", got.ClientID, authtest.ClientID)
	}
}

// TestAddProvider_BadIssuer passes a URL that returns 404 so that OIDC
// discovery fails.
func TestAddProvider_BadIssuer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	v := NewVerifier(nil)
	err := v.AddProvider(context.Background(), ProviderConfig{Name: "bad", Issuer: srv.URL, ClientID: "x"})
	if err == nil {
		t.Fatal("expected error for bad issuer, got nil")
	}
	if !strings.Contains(err.Error(), "discover OIDC provider") {
		t.Errorf("error %q does not contain 'discover OIDC provider'", err.Error())
	}
}

func TestVerifyToken_Valid(t *testing.T) {
	iss := authtest.NewIssuer(t)
	v := NewVerifier(nil)
	if err := v.AddProvider(context.Background(), providerFor(iss, "farm")); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	id, err := v.VerifyToken(context.Background(), iss.IDToken(t, "user-7", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	want := Identity{Provider: "farm", Sub: "user-7", Email: "user-7@example.com"}
	if *id != want {
		t.Errorf("identity = %+v, want %+v", *id, want)
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	iss := authtest.NewIssuer(t)
	v := NewVerifier(nil)
	if err := v.AddProvider(context.Background(), providerFor(iss, "farm")); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	_, err := v.VerifyToken(context.Background(), iss.IDToken(t, "user-7", time.Now().Add(-time.Hour)))
	if err == nil || !strings.Contains(err.Error(), "token verification failed") {
		t.Errorf("expected verification failure for expired token, got %v", err)
	}
}

func TestVerifyToken_NoProviders(t *testing.T) {
	v := NewVerifier(nil)
	_, err := v.VerifyToken(context.Background(), "sometoken")
	if err == nil || !strings.Contains(err.Error(), "no OIDC providers configured") {
		t.Errorf("error %v does not contain 'no OIDC providers configured'", err)
	}
}

func TestVerifyToken_Empty(t *testing.T) {
	v := NewVerifier(nil)
	if _, err := v.VerifyToken(context.Background(), ""); err != ErrNoToken {
		t.Errorf("error = %v, want %v", err, ErrNoToken)
	}
}

func TestVerifyToken_InvalidToken(t *testing.T) {
	iss := authtest.NewIssuer(t)
	v := NewVerifier(nil)
	if err := v.AddProvider(context.Background(), providerFor(iss, "farm")); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	_, err := v.VerifyToken(context.Background(), "this.is.not.a.valid.token")
	if err == nil || !strings.Contains(err.Error(), "token verification failed") {
		t.Errorf("expected verification failure, got %v", err)
	}
}

func TestOAuth2Config(t *testing.T) {
	iss := authtest.NewIssuer(t)
	v := NewVerifier(nil)
	if err := v.AddProvider(context.Background(), providerFor(iss, "farm")); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	conf, ok := v.OAuth2Config("farm")
	if !ok {
		t.Fatal("OAuth2Config returned false")
	}
	if conf.ClientID != authtest.ClientID {
		t.Errorf("ClientID = %q, want %q", conf.ClientID, authtest.ClientID)
	}
	if conf.Endpoint.TokenURL != iss.URL()+"/token" {
		t.Errorf("TokenURL = %q", conf.Endpoint.TokenURL)
	}
	if conf.Endpoint.DeviceAuthURL != iss.URL()+"/device" {
		t.Errorf("DeviceAuthURL = %q", conf.Endpoint.DeviceAuthURL)
	}
	if len(conf.Scopes) != 1 || conf.Scopes[0] != "openid" {
		t.Errorf("Scopes = %v, want [openid]", conf.Scopes)
	}

	if _, ok := v.OAuth2Config("ghost"); ok {
		t.Error("OAuth2Config should return false for an unknown provider")
	}
}
