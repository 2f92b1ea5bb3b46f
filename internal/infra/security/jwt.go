package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/nepalwears/account-service/internal/core/port"
)

var (
	// ErrInvalidToken indicates the token is malformed or its signature does not verify.
	ErrInvalidToken = port.ErrInvalidToken
	// ErrExpiredToken indicates the token has passed its validity window.
	ErrExpiredToken = port.ErrExpiredToken
)

const defaultTokenTTL = 7 * 24 * time.Hour

// AccessTokenClaims embeds the account identity in a signed bearer token.
type AccessTokenClaims struct {
	AccountID string `json:"uid"`
	jwt.RegisteredClaims
}

// JWTIssuer issues and verifies HMAC-signed bearer tokens. Possession of the
// token is sufficient for authentication; there is no audience or device
// binding beyond the issuer claim.
type JWTIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTIssuer constructs an issuer signing with the supplied shared secret.
func NewJWTIssuer(secret, issuer string, ttl time.Duration) (*JWTIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt: signing secret is required")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, fmt.Errorf("jwt: issuer is required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &JWTIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock injects a custom clock, primarily for tests.
func (i *JWTIssuer) WithClock(now func() time.Time) *JWTIssuer {
	if now != nil {
		i.now = now
	}
	return i
}

// TTL returns the configured validity window.
func (i *JWTIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token embedding the account identifier and issuance time.
func (i *JWTIssuer) Issue(accountID string) (string, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", fmt.Errorf("jwt: account id is required")
	}

	now := i.now().UTC()
	claims := AccessTokenClaims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// Verify validates the signature and validity window and returns the claims.
func (i *JWTIssuer) Verify(token string) (*port.TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.AccountID) == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}

	result := &port.TokenClaims{
		AccountID: claims.AccountID,
		IssuedAt:  claims.IssuedAt.Time,
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}

	return result, nil
}

var _ port.TokenIssuer = (*JWTIssuer)(nil)
