// Package auth implements the credential checks that guard the prediction
// API: signed bearer tokens for users and a shared key for services.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Manonp59/prbmg/pkg/models"
	"github.com/golang-jwt/jwt/v5"
)

// TokenAlgorithm is the only signing algorithm accepted for bearer tokens.
const TokenAlgorithm = "HS256"

// TokenAuth issues and verifies HS256-signed bearer tokens carrying a
// subject claim. Only subjects in the allow-list are authorized.
type TokenAuth struct {
	secret  []byte
	ttl     time.Duration
	allowed map[string]bool
	now     func() time.Time
}

// NewTokenAuth creates a TokenAuth. An empty secret makes every Verify fail.
func NewTokenAuth(secret []byte, ttl time.Duration, allowed []string) *TokenAuth {
	set := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		set[s] = true
	}
	return &TokenAuth{secret: secret, ttl: ttl, allowed: set, now: time.Now}
}

// Issue signs a token for subject that expires after the configured TTL.
func (a *TokenAuth) Issue(subject string) (string, time.Time, error) {
	if len(a.secret) == 0 {
		return "", time.Time{}, errors.New("token secret not configured")
	}
	now := a.now()
	expires := now.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify decodes token and returns its subject. Every failure, including a
// valid token for a subject outside the allow-list, wraps models.ErrUnauthorized.
func (a *TokenAuth) Verify(token string) (string, error) {
	if len(a.secret) == 0 || token == "" {
		return "", models.ErrUnauthorized
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{TokenAlgorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", models.ErrUnauthorized)
	}
	if !a.Allowed(claims.Subject) {
		return "", fmt.Errorf("%w: subject not allowed", models.ErrUnauthorized)
	}
	return claims.Subject, nil
}

// Allowed reports whether subject is on the allow-list.
func (a *TokenAuth) Allowed(subject string) bool {
	return a.allowed[subject]
}
