package store

import (
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9]{14}$`)

func TestNewPredictionID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id, err := NewPredictionID()
		require.NoError(t, err)
		assert.Regexp(t, idPattern, id)
		seen[id] = true
	}
	assert.Len(t, seen, 200)
}

func TestIsPrimaryKeyCollision(t *testing.T) {
	assert.True(t, isPrimaryKeyCollision(&pgconn.PgError{Code: "23505", ConstraintName: "predictions_pkey"}))
	assert.False(t, isPrimaryKeyCollision(&pgconn.PgError{Code: "23505", ConstraintName: "predictions_incident_number_key"}))
	assert.False(t, isPrimaryKeyCollision(&pgconn.PgError{Code: "23503", ConstraintName: "predictions_pkey"}))
	assert.False(t, isPrimaryKeyCollision(errors.New("boom")))
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, isDuplicateKeyError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isDuplicateKeyError(&pgconn.PgError{Code: "42P01"}))
	assert.False(t, isDuplicateKeyError(errors.New("boom")))
}
