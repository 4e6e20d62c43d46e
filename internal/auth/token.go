// Package auth inspects the bearer token issued by the backend. The client
// cannot verify the signature; it only reads the subject and expiry so an
// expired session is detected before any network call.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/peerchat/chat-client/internal/chat"
)

// Claims is the subset of token claims the client relies on.
type Claims struct {
	Subject   string
	ExpiresAt time.Time // zero when the token has no exp claim
}

// Inspect parses token without verifying its signature.
func Inspect(token string) (Claims, error) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return Claims{}, fmt.Errorf("auth: parse token: %w", err)
	}

	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, nil
}

// Expired reports whether the claims are past their expiry at now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// TTL returns the remaining lifetime at now, or 0 when the token has no
// expiry.
func (c Claims) TTL(now time.Time) time.Duration {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Check validates a stored token before use. Expired tokens fail with
// chat.ErrAuthExpired. Opaque tokens that are not JWTs pass unchanged so the
// backend remains the authority on them.
func Check(token string, now time.Time) (Claims, error) {
	if token == "" {
		return Claims{}, chat.ErrNotAuthenticated
	}
	c, err := Inspect(token)
	if err != nil {
		return Claims{}, nil
	}
	if c.Expired(now) {
		return c, fmt.Errorf("auth: token expired at %s: %w", c.ExpiresAt.Format(time.RFC3339), chat.ErrAuthExpired)
	}
	return c, nil
}
