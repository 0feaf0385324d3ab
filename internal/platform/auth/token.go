// Package auth binds HTTP callers to the server's single active session.
// A successful login returns an HMAC-signed JWT whose subject is the session
// user; the session middleware accepts a token only while that user is still
// the one signed in and the token has not been revoked by a logout.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Anup697028/mediwise-chat/internal/platform/clock"
)

const DefaultIssuer = "mediwise"

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrShortKey     = errors.New("signing key must be at least 32 bytes")
)

// Claims are the session token claims.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer struct {
	key    []byte
	ttl    time.Duration
	issuer string
	clock  clock.Clock
}

// NewTokenIssuer returns an issuer using HS256 with key.
func NewTokenIssuer(key []byte, ttl time.Duration, clk clock.Clock) (*TokenIssuer, error) {
	if len(key) < 32 {
		return nil, ErrShortKey
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &TokenIssuer{key: key, ttl: ttl, issuer: DefaultIssuer, clock: clk}, nil
}

// Issue returns a signed token for userID and its expiry.
func (i *TokenIssuer) Issue(userID, role string) (string, time.Time, error) {
	now := i.clock.Now()
	exp := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies a token and returns its claims.
func (i *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or id", ErrInvalidToken)
	}
	return claims, nil
}
