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

// handlerCapture records the identity injected into the request context.
type handlerCapture struct {
	identity *Identity
	called   bool
}

func (h *handlerCapture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.identity = IdentityFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func newRequest(authHeader string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	if authHeader != "" {
		r.Header.Set("Authorization", authHeader)
	}
	return r
}

func TestMiddleware(t *testing.T) {
	cases := []struct {
		name     string
		devMode  bool
		header   string
		wantCode int
		wantID   *Identity
		wantBody string
	}{
		{"dev anonymous", true, "", http.StatusOK, &Identity{Provider: "dev", Sub: "anonymous"}, ""},
		{"dev colon token", true, "Bearer prov:sub", http.StatusOK, &Identity{Provider: "prov", Sub: "sub"}, ""},
		{"dev bad token", true, "Bearer nocolon", http.StatusUnauthorized, nil, "invalid token"},
		{"missing", false, "", http.StatusUnauthorized, nil, "missing authorization"},
		{"not bearer", false, "Basic dXNlcjpwYXNz", http.StatusUnauthorized, nil, "missing authorization"},
		{"empty bearer", false, "Bearer ", http.StatusUnauthorized, nil, "missing authorization"},
		{"invalid", false, "Bearer garbage", http.StatusUnauthorized, nil, "invalid token"},
		{"colon outside dev", false, "Bearer prov:sub", http.StatusUnauthorized, nil, "invalid token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			capture := &handlerCapture{}
			handler := Middleware(NewVerifier(nil), tc.devMode)(capture)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, newRequest(tc.header))

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if tc.wantID == nil {
				if capture.called {
					t.Fatal("next handler should not have been called")
				}
				if !strings.Contains(w.Body.String(), tc.wantBody) {
					t.Errorf("body = %q, want to contain %q", w.Body.String(), tc.wantBody)
				}
				if w.Header().Get("WWW-Authenticate") == "" {
					t.Error("missing WWW-Authenticate header on 401")
				}
				return
			}
			if capture.identity == nil || *capture.identity != *tc.wantID {
				t.Errorf("identity = %+v, want %+v", capture.identity, tc.wantID)
			}
		})
	}
}

func TestMiddleware_VerifiedToken(t *testing.T) {
	iss := authtest.NewIssuer(t)
	v := NewVerifier(nil)
	if err := v.AddProvider(context.Background(), providerFor(iss, "farm")); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	capture := &handlerCapture{}
	handler := Middleware(v, false)(capture)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("Bearer "+iss.IDToken(t, "user-9", time.Now().Add(time.Hour))))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if capture.identity == nil || capture.identity.Sub != "user-9" || capture.identity.Provider != "farm" {
		t.Errorf("identity = %+v", capture.identity)
	}
}

func TestIdentityFromContext_Nil(t *testing.T) {
	if id := IdentityFromContext(context.Background()); id != nil {
		t.Fatalf("expected nil, got %+v", id)
	}
}
