package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Manonp59/prbmg/internal/api/response"
	"github.com/Manonp59/prbmg/pkg/models"
)

// TokenIssuer exchanges user credentials for a bearer token.
type TokenIssuer interface {
	Token(ctx context.Context, username, password string) (string, error)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// NewTokenHandler returns an http.HandlerFunc for POST /auth/token. The
// body is an OAuth2 password-grant form with username and password.
func NewTokenHandler(issuer TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid form body", nil)
			return
		}

		token, err := issuer.Token(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
		if errors.Is(err, models.ErrUnauthorized) {
			response.Unauthorized(w, "Bearer", "Incorrect username or password")
			return
		}
		if err != nil {
			slog.Error("token issue failed", "error", err)
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "An unexpected error occurred", nil)
			return
		}

		response.Bare(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
	}
}

// NewIsAuthorizedHandler returns an http.HandlerFunc for GET /auth/is_authorized.
// It runs behind the bearer middleware, so reaching it means the token is valid.
func NewIsAuthorizedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.Bare(w, http.StatusOK, true)
	}
}
