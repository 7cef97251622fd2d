// Package auth handles dashboard user accounts and JWT session tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
)

// UserStore persists dashboard users. The sqlite sink implements it.
type UserStore interface {
	CreateUser(username, passwordHash string) error
	GetUserHash(username string) (string, error)
}

// Authenticator handles user signup and login against a user store
type Authenticator struct {
	users  UserStore
	tokens tokenIssuer
}

// NewAuthenticator creates an authenticator over the given user store.
// See newTokenIssuer for the empty-secret and zero-ttl defaults.
func NewAuthenticator(users UserStore, secret string, tokenTTL time.Duration) *Authenticator {
	return &Authenticator{
		users:  users,
		tokens: newTokenIssuer(secret, tokenTTL),
	}
}

// Signup creates a new user with a bcrypt-hashed password
func (a *Authenticator) Signup(username, password string) error {
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}

	existing, err := a.users.GetUserHash(username)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if existing != "" {
		return ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return a.users.CreateUser(username, string(hash))
}

// Authenticate validates credentials and returns a JWT token with its
// expiry as a Unix timestamp
func (a *Authenticator) Authenticate(username, password string) (string, int64, error) {
	hash, err := a.users.GetUserHash(username)
	if err != nil {
		return "", 0, fmt.Errorf("failed to look up user: %w", err)
	}
	if hash == "" {
		return "", 0, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expiresAt, err := a.tokens.issue(username)
	if err != nil {
		return "", 0, err
	}
	return token, expiresAt.Unix(), nil
}

// ValidateToken validates a session token
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.tokens.parse(token)
}
