package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerchat/chat-client/internal/chat"
)

func sign(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestInspect(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := sign(t, jwt.RegisteredClaims{Subject: "42", ExpiresAt: jwt.NewNumericDate(exp)})

	c, err := Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, "42", c.Subject)
	assert.True(t, c.ExpiresAt.Equal(exp))
	assert.False(t, c.Expired(time.Now()))
	assert.InDelta(t, time.Hour.Seconds(), c.TTL(time.Now()).Seconds(), 5)
}

func TestCheck(t *testing.T) {
	now := time.Now()

	_, err := Check("", now)
	assert.ErrorIs(t, err, chat.ErrNotAuthenticated)

	expired := sign(t, jwt.RegisteredClaims{Subject: "42", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))})
	c, err := Check(expired, now)
	assert.ErrorIs(t, err, chat.ErrAuthExpired)
	assert.Equal(t, "42", c.Subject)

	// Opaque tokens are left to the backend.
	_, err = Check("opaque-session-token", now)
	assert.NoError(t, err)

	noExp := sign(t, jwt.RegisteredClaims{Subject: "7"})
	c, err = Check(noExp, now)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), c.TTL(now))
}
