// Package authtest provides an in-process OIDC issuer for tests.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const (
	ClientID = "client-abc"
	UserCode = "USER-CODE"
	keyID    = "test-key"
)

// Issuer serves discovery, JWKS, device authorization and token endpoints
// and signs ID tokens with a fresh RSA key.
type Issuer struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	mu       sync.Mutex
	pending  int
	denied   bool
	noDevice bool
	polls    int
}

// NewIssuer starts an issuer that is closed when the test ends.
func NewIssuer(t *testing.T) *Issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	iss := &Issuer{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		base := iss.srv.URL
		doc := map[string]any{
			"issuer":                                base,
			"authorization_endpoint":                base + "/authorize",
			"token_endpoint":                        base + "/token",
			"jwks_uri":                              base + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		}
		iss.mu.Lock()
		if !iss.noDevice {
			doc["device_authorization_endpoint"] = base + "/device"
		}
		iss.mu.Unlock()
		writeJSON(w, http.StatusOK, doc)
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       &key.PublicKey,
			KeyID:     keyID,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}}})
	})
	mux.HandleFunc("POST /device", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"device_code":      "device-code-abc",
			"user_code":        UserCode,
			"verification_uri": iss.srv.URL + "/activate",
			"expires_in":       600,
			"interval":         1,
		})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		iss.mu.Lock()
		iss.polls++
		pending, denied := iss.pending, iss.denied
		if pending > 0 {
			iss.pending--
		}
		iss.mu.Unlock()

		switch {
		case denied:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "access_denied"})
		case pending > 0:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "authorization_pending"})
		default:
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":  "access-token",
				"refresh_token": "refresh-token",
				"token_type":    "Bearer",
				"expires_in":    3600,
				"id_token":      iss.IDToken(t, "user-1", time.Now().Add(time.Hour)),
			})
		}
	})

	iss.srv = httptest.NewServer(mux)
	t.Cleanup(iss.srv.Close)
	return iss
}

// URL is the issuer identifier.
func (iss *Issuer) URL() string { return iss.srv.URL }

// SetPending makes the next n token polls answer authorization_pending.
func (iss *Issuer) SetPending(n int) {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	iss.pending = n
}

// SetDenied makes token polls answer access_denied.
func (iss *Issuer) SetDenied(denied bool) {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	iss.denied = denied
}

// SetNoDevice hides the device authorization endpoint from discovery.
func (iss *Issuer) SetNoDevice(noDevice bool) {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	iss.noDevice = noDevice
}

// Polls returns how many token requests were made.
func (iss *Issuer) Polls() int {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	return iss.polls
}

// IDToken signs an ID token for sub, audience ClientID.
func (iss *Issuer) IDToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: iss.key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", keyID),
	)
	if err != nil {
		t.Fatalf("create signer: %v", err)
	}
	raw, err := jwt.Signed(signer).
		Claims(jwt.Claims{
			Issuer:   iss.srv.URL,
			Subject:  sub,
			Audience: jwt.Audience{ClientID},
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Expiry:   jwt.NewNumericDate(exp),
		}).
		Claims(map[string]any{"email": sub + "@example.com"}).
		Serialize()
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
