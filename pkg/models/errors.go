package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized is returned for a missing, invalid or expired credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConfiguration covers unresolvable models, corrupt or missing
	// artifacts and malformed registry responses. It is fatal for a request.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound is returned when a collaborator record does not exist.
	ErrNotFound = errors.New("resource not found")
)

// ValidationError reports a malformed request with per-field detail.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
