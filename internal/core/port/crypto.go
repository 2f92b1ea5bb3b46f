package port

import (
	"errors"
	"time"
)

var (
	// ErrInvalidToken indicates a token that is malformed or fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token past its validity window.
	ErrExpiredToken = errors.New("token expired")
)

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// OTPKey is the enrollment artifact for a provisioned TOTP secret.
type OTPKey struct {
	Secret          string
	ProvisioningURI string
}

// OTPEngine generates and validates time-based one-time passwords.
type OTPEngine interface {
	GenerateSecret(label string) (OTPKey, error)
	CurrentCode(secret string) (string, error)
	Verify(secret, code string) (bool, error)
}

// TokenClaims is the verified content of a bearer token.
type TokenClaims struct {
	AccountID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer issues and verifies signed bearer tokens. Implementations
// report verification failures with ErrInvalidToken or ErrExpiredToken so
// callers never depend on a concrete token format.
type TokenIssuer interface {
	Issue(accountID string) (string, error)
	Verify(token string) (*TokenClaims, error)
}
