package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, rawToken string) (*Identity, error)
}

// Middleware validates the Authorization header and injects Identity into
// context. In dev mode a missing token is accepted as anonymous and an
// unverifiable "provider:sub" token is taken at face value.
func Middleware(v TokenVerifier, devMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				if devMode {
					serveAs(next, w, r, &Identity{Provider: "dev", Sub: "anonymous"})
					return
				}
				unauthorized(w, "missing authorization")
				return
			}

			id, err := v.VerifyToken(r.Context(), token)
			if err != nil {
				if devMode {
					if provider, sub, found := strings.Cut(token, ":"); found {
						serveAs(next, w, r, &Identity{Provider: provider, Sub: sub})
						return
					}
				}
				unauthorized(w, "invalid token")
				return
			}
			serveAs(next, w, r, id)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

func serveAs(next http.Handler, w http.ResponseWriter, r *http.Request, id *Identity) {
	ctx := context.WithValue(r.Context(), identityKey, id)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="remoteview"`)
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

// IdentityFromContext extracts the Identity from request context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}
