// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName carries the session token on every request.
const CookieName = "auth_token"

// privateKey and publicKey are used for signing and verifying JWT tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL is how long a token stays valid (0 => never expires).
	tokenTTL time.Duration
)

// Session is what a token proves about its bearer.
type Session struct {
	Address     string
	DisplayName string
}

// Init generates a fresh ed25519 key pair at runtime and sets the token lifetime.
func Init(ttl time.Duration) error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	tokenTTL = ttl
	return nil
}

// CreateJWT signs a token with "sub" = wallet address and "name" = display name.
func CreateJWT(s Session) (string, error) {
	if privateKey == nil {
		return "", errors.New("auth not initialized")
	}
	claims := jwt.MapClaims{
		"sub":  s.Address,
		"name": s.DisplayName,
		"iat":  time.Now().Unix(),
	}
	if tokenTTL != 0 {
		claims["exp"] = time.Now().Add(tokenTTL).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a JWT string and returns the session it carries.
func AuthenticateJWT(tokenString string) (Session, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return Session{}, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, fmt.Errorf("invalid jwt claims")
	}
	addr, ok := claims["sub"].(string)
	if !ok || addr == "" {
		return Session{}, fmt.Errorf("missing sub in jwt")
	}
	name, _ := claims["name"].(string)
	return Session{Address: addr, DisplayName: name}, nil
}
