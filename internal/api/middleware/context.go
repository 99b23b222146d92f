package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	fingerprintKey contextKey = "credential_fingerprint"
	subjectKey     contextKey = "token_subject"
)

func setRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the id assigned by the RequestID middleware.
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

// WithFingerprint records the fingerprint of the credential that
// authenticated the request.
func WithFingerprint(ctx context.Context, fp string) context.Context {
	return context.WithValue(ctx, fingerprintKey, fp)
}

func getFingerprint(r *http.Request) (string, bool) {
	fp, ok := r.Context().Value(fingerprintKey).(string)
	return fp, ok && fp != ""
}

func setSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// GetSubject returns the bearer token subject set by RequireBearer.
func GetSubject(r *http.Request) (string, bool) {
	s, ok := r.Context().Value(subjectKey).(string)
	return s, ok
}
