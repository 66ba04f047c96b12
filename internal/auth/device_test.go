package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/brporter/remoteview/internal/auth/authtest"
)

func deviceConfig(t *testing.T, iss *authtest.Issuer) *oauth2.Config {
	t.Helper()
	v := NewVerifier(nil)
	if err := v.AddProvider(context.Background(), providerFor(iss, "farm")); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}
	conf, ok := v.OAuth2Config("farm")
	if !ok {
		t.Fatal("OAuth2Config returned false")
	}
	return conf
}

func TestDeviceLogin_Success(t *testing.T) {
	iss := authtest.NewIssuer(t)
	conf := deviceConfig(t, iss)

	var prompted *oauth2.DeviceAuthResponse
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tok, err := DeviceLogin(ctx, conf, func(da *oauth2.DeviceAuthResponse) { prompted = da })
	if err != nil {
		t.Fatalf("DeviceLogin: %v", err)
	}
	if prompted == nil || prompted.UserCode != "USER-CODE" {
		t.Fatalf("prompt = %+v, want user code USER-CODE", prompted)
	}
	if !strings.HasSuffix(prompted.VerificationURI, "/activate") {
		t.Errorf("VerificationURI = %q", prompted.VerificationURI)
	}
	if tok.AccessToken != "access-token" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
	if tok.RefreshToken != "refresh-token" {
		t.Errorf("RefreshToken = %q", tok.RefreshToken)
	}

	raw := IDToken(tok)
	if raw == "" {
		t.Fatal("token response carried no id_token")
	}
	v := NewVerifier(nil)
	if err := v.AddProvider(context.Background(), providerFor(iss, "farm")); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}
	if _, err := v.VerifyToken(context.Background(), raw); err != nil {
		t.Errorf("issued id_token does not verify: %v", err)
	}
}

func TestDeviceLogin_Denied(t *testing.T) {
	iss := authtest.NewIssuer(t)
	iss.SetDenied(true)
	conf := deviceConfig(t, iss)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := DeviceLogin(ctx, conf, nil)
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("expected access denied error, got %v", err)
	}
}

func TestDeviceLogin_Cancelled(t *testing.T) {
	iss := authtest.NewIssuer(t)
	iss.SetPending(1000)
	conf := deviceConfig(t, iss)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := DeviceLogin(ctx, conf, func(*oauth2.DeviceAuthResponse) { cancel() })
	if err == nil {
		t.Fatal("expected error after cancellation, got nil")
	}
}

func TestDeviceLogin_NoDeviceEndpoint(t *testing.T) {
	iss := authtest.NewIssuer(t)
	iss.SetNoDevice(true)
	conf := deviceConfig(t, iss)

	if _, err := DeviceLogin(context.Background(), conf, nil); err != ErrNoDeviceEndpoint {
		t.Errorf("error = %v, want %v", err, ErrNoDeviceEndpoint)
	}
}

func TestIDToken_Missing(t *testing.T) {
	if got := IDToken(nil); got != "" {
		t.Errorf("IDToken(nil) = %q", got)
	}
	if got := IDToken(&oauth2.Token{AccessToken: "a"}); got != "" {
		t.Errorf("IDToken without extra = %q", got)
	}
}
