package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const defaultTokenTTL = 24 * time.Hour

// Claims carries the authenticated username inside a session token
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// tokenIssuer signs and verifies HS256 session tokens
type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// newTokenIssuer builds an issuer from the configured secret and token
// lifetime. An empty secret gets a random one, which invalidates all
// sessions on restart; fine for development, logged so deployments notice.
func newTokenIssuer(secret string, ttl time.Duration) tokenIssuer {
	if secret == "" {
		raw := make([]byte, 32)
		rand.Read(raw)
		secret = hex.EncodeToString(raw)
		log.Printf("[Auth] No session secret configured, generated an ephemeral one")
	}
	if ttl == 0 {
		ttl = defaultTokenTTL
	}
	return tokenIssuer{secret: []byte(secret), ttl: ttl}
}

// issue signs a token for username and returns it with its expiry
func (i tokenIssuer) issue(username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(i.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "fire-detection",
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// parse verifies a token and returns its claims
func (i tokenIssuer) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
