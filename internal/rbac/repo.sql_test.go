package rbac

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/toolroom-mes/toolroom/internal/shared"
)

func TestMapReferenceError(t *testing.T) {
	fk := &pgconn.PgError{Code: foreignKeyViolation}
	assert.ErrorIs(t, mapReferenceError(fk), shared.ErrNotFound)

	other := errors.New("connection reset")
	assert.Equal(t, other, mapReferenceError(other))

	assert.NoError(t, mapReferenceError(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: uniqueViolation}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: foreignKeyViolation}))
	assert.False(t, isUniqueViolation(errors.New("timeout")))
}
