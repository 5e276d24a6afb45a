package client

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestSession_ExpiresWithin(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := &Session{ExpiresAt: now.Add(time.Minute).Unix()}

	require.False(t, s.ExpiresWithin(30*time.Second, now))
	require.True(t, s.ExpiresWithin(time.Minute, now))
	require.True(t, s.ExpiresWithin(0, now.Add(2*time.Minute)))

	require.False(t, (&Session{}).ExpiresWithin(time.Hour, now), "unknown expiry never expires")
}

func TestSession_FillExpiry_FromExpiresIn(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := &Session{ExpiresIn: 3600}
	s.fillExpiry(now)
	require.Equal(t, now.Add(time.Hour).Unix(), s.ExpiresAt)
}

func TestSession_FillExpiry_FromJWTClaim(t *testing.T) {
	exp := time.Unix(1_800_000_000, 0)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	s := &Session{AccessToken: tok}
	s.fillExpiry(time.Now())
	require.Equal(t, exp.Unix(), s.ExpiresAt)
}

func TestSession_FillExpiry_KeepsExplicitValue(t *testing.T) {
	s := &Session{ExpiresAt: 42, ExpiresIn: 3600}
	s.fillExpiry(time.Now())
	require.EqualValues(t, 42, s.ExpiresAt)
}

func TestSession_FillExpiry_OpaqueToken(t *testing.T) {
	s := &Session{AccessToken: "not-a-jwt"}
	s.fillExpiry(time.Now())
	require.Zero(t, s.ExpiresAt)
	require.True(t, s.Expiry().IsZero())
}

func TestProviderError_UnwrapsUnauthorized(t *testing.T) {
	require.ErrorIs(t, &ProviderError{Status: 401}, ErrUnauthorized)
	require.ErrorIs(t, &ProviderError{Status: 403}, ErrUnauthorized)
	require.NotErrorIs(t, &ProviderError{Status: 400}, ErrUnauthorized)

	require.Equal(t, "auth provider error 400 (invalid_credentials): Invalid login credentials",
		(&ProviderError{Status: 400, Code: "invalid_credentials", Message: MsgInvalidCredentials}).Error())
}
