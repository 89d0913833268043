// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs and verifies EdDSA session tokens whose "sub" claim is the account id.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// ttl of issued tokens; zero means tokens carry no exp claim.
	ttl time.Duration
	now func() time.Time
}

// NewIssuer derives the signing key from secret, so every instance sharing the secret accepts the
// same tokens. An empty secret generates a key that lives as long as the process.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	iss := &Issuer{ttl: ttl, now: time.Now}
	if secret == "" {
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
		}
		iss.privateKey, iss.publicKey = priv, pub
		return iss, nil
	}

	seed := sha256.Sum256([]byte(secret))
	iss.privateKey = ed25519.NewKeyFromSeed(seed[:])
	iss.publicKey = iss.privateKey.Public().(ed25519.PublicKey)
	return iss, nil
}

// CreateJWT returns a signed token for userID.
func (iss *Issuer) CreateJWT(userID string) (string, error) {
	now := iss.now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
	}
	if iss.ttl > 0 {
		claims["exp"] = now.Add(iss.ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(iss.privateKey)
}

// AuthenticateJWT verifies tokenString and returns its "sub" claim.
func (iss *Issuer) AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return iss.publicKey, nil
	}, jwt.WithTimeFunc(iss.now))
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid jwt claims")
	}
	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return "", errors.New("missing sub in jwt")
	}
	return userID, nil
}
