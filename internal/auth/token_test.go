package auth

import (
	"testing"
	"time"

	"github.com/brporter/remoteview/internal/auth/authtest"
)

func TestTokenExpiry(t *testing.T) {
	iss := authtest.NewIssuer(t)
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)

	got, err := TokenExpiry(iss.IDToken(t, "user-1", exp))
	if err != nil {
		t.Fatalf("TokenExpiry: %v", err)
	}
	if !got.Equal(exp) {
		t.Errorf("expiry = %v, want %v", got, exp)
	}
}

func TestTokenExpired(t *testing.T) {
	iss := authtest.NewIssuer(t)
	now := time.Now()
	raw := iss.IDToken(t, "user-1", now.Add(10*time.Minute))

	cases := []struct {
		name   string
		raw    string
		now    time.Time
		leeway time.Duration
		want   bool
	}{
		{"fresh", raw, now, time.Minute, false},
		{"inside leeway", raw, now, 15 * time.Minute, true},
		{"past expiry", raw, now.Add(time.Hour), 0, true},
		{"garbage", "not-a-jwt", now, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TokenExpired(tc.raw, tc.now, tc.leeway); got != tc.want {
				t.Errorf("TokenExpired = %v, want %v", got, tc.want)
			}
		})
	}
}
