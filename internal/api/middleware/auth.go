package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Manonp59/prbmg/internal/api/response"
	"github.com/Manonp59/prbmg/internal/auth"
	"github.com/Manonp59/prbmg/internal/metrics"
)

// Auth provides the shared-key and bearer-token middleware.
type Auth struct {
	keys    *auth.KeyAuth
	tokens  *auth.TokenAuth
	metrics *metrics.Metrics
}

// NewAuth creates a new Auth middleware.
func NewAuth(keys *auth.KeyAuth, tokens *auth.TokenAuth, m *metrics.Metrics) *Auth {
	return &Auth{keys: keys, tokens: tokens, metrics: m}
}

// RequireKey rejects requests whose X-API-Key header does not match the
// shared secret, except on exempt paths. The key fingerprint is stored in
// the request context for rate limiting.
func (a *Auth) RequireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.keys.Exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(auth.APIKeyHeader)
		if err := a.keys.Check(key); err != nil {
			a.metrics.AuthRejected("api_key")
			attrs := []any{"path", r.URL.Path, "remote_addr", r.RemoteAddr, "request_id", GetRequestID(r)}
			if key != "" {
				attrs = append(attrs, "key_fingerprint", auth.Fingerprint(key))
			}
			slog.Warn("api key rejected", attrs...)
			response.Unauthorized(w, "", "Missing or invalid "+auth.APIKeyHeader+" header")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithFingerprint(r.Context(), auth.Fingerprint(key))))
	})
}

// RequireBearer validates the Authorization bearer token and sets its
// subject in the request context.
func (a *Auth) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			a.metrics.AuthRejected("bearer")
			response.Unauthorized(w, "Bearer", "Missing or invalid Authorization header")
			return
		}

		subject, err := a.tokens.Verify(token)
		if err != nil {
			a.metrics.AuthRejected("bearer")
			slog.Warn("bearer token rejected",
				"path", r.URL.Path,
				"token_fingerprint", auth.Fingerprint(token),
				"request_id", GetRequestID(r),
				"error", err,
			)
			response.Unauthorized(w, "Bearer", "Could not validate credentials")
			return
		}

		ctx := setSubject(r.Context(), subject)
		if _, ok := getFingerprint(r); !ok {
			ctx = WithFingerprint(ctx, auth.Fingerprint(token))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
