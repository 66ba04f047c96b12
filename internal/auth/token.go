package auth

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var signatureAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.EdDSA,
}

// TokenExpiry reads the exp claim of a JWT without checking its signature.
// The zero time means the token carries no expiry.
func TokenExpiry(raw string) (time.Time, error) {
	tok, err := jwt.ParseSigned(raw, signatureAlgorithms)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	var claims jwt.Claims
	if err := tok.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return time.Time{}, fmt.Errorf("read token claims: %w", err)
	}
	if claims.Expiry == nil {
		return time.Time{}, nil
	}
	return claims.Expiry.Time(), nil
}

// TokenExpired reports whether a cached token expires within leeway of now.
// Tokens that cannot be parsed are treated as expired.
func TokenExpired(raw string, now time.Time, leeway time.Duration) bool {
	exp, err := TokenExpiry(raw)
	if err != nil {
		return true
	}
	if exp.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(exp)
}
