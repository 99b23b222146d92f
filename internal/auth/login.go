package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Manonp59/prbmg/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// UserLookup reads user accounts by username.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Login exchanges a username and password for a bearer token.
type Login struct {
	users  UserLookup
	tokens *TokenAuth
}

// NewLogin creates a Login.
func NewLogin(users UserLookup, tokens *TokenAuth) *Login {
	return &Login{users: users, tokens: tokens}
}

// Token verifies the password against the stored bcrypt hash and issues a
// token for the user. Unknown users and wrong passwords are indistinguishable.
func (l *Login) Token(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", models.ErrUnauthorized
	}

	user, err := l.users.GetUserByUsername(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		return "", models.ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)) != nil {
		return "", models.ErrUnauthorized
	}

	token, _, err := l.tokens.Issue(user.Username)
	if err != nil {
		return "", err
	}
	return token, nil
}

// HashPassword returns the bcrypt hash stored for a new user.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
