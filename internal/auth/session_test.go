package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerRoundTrip(t *testing.T) {
	iss, err := NewIssuer("", time.Hour)
	require.NoError(t, err)

	token, err := iss.CreateJWT("0190a0b1-0000-7000-8000-000000000001")
	require.NoError(t, err)

	sub, err := iss.AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "0190a0b1-0000-7000-8000-000000000001", sub)
}

func TestIssuerSharedSecret(t *testing.T) {
	a, err := NewIssuer("s3cret", time.Hour)
	require.NoError(t, err)
	b, err := NewIssuer("s3cret", time.Hour)
	require.NoError(t, err)
	other, err := NewIssuer("different", time.Hour)
	require.NoError(t, err)

	token, err := a.CreateJWT("user")
	require.NoError(t, err)

	sub, err := b.AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "user", sub)

	_, err = other.AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestIssuerExpiry(t *testing.T) {
	iss, err := NewIssuer("k", time.Minute)
	require.NoError(t, err)

	issuedAt := time.Now()
	iss.now = func() time.Time { return issuedAt }
	token, err := iss.CreateJWT("user")
	require.NoError(t, err)

	iss.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = iss.AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestIssuerWithoutTTL(t *testing.T) {
	iss, err := NewIssuer("k", 0)
	require.NoError(t, err)

	token, err := iss.CreateJWT("user")
	require.NoError(t, err)

	iss.now = func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }
	sub, err := iss.AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "user", sub)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	iss, err := NewIssuer("k", time.Hour)
	require.NoError(t, err)

	for _, tok := range []string{"", "abc", "a.b.c"} {
		_, err := iss.AuthenticateJWT(tok)
		assert.Error(t, err, tok)
	}
}
