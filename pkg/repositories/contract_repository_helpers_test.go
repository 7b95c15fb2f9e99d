package repositories

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/apperrors"
)

func TestMapWriteError(t *testing.T) {
	unique := &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "idx_contracts_external_id"}
	err := mapWriteError(unique, "create contract")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Contains(t, err.Error(), "idx_contracts_external_id")

	fk := &pgconn.PgError{Code: pgForeignKeyViolation}
	err = mapWriteError(fk, "create amendment")
	assert.True(t, apperrors.Is(err, apperrors.KindStore))

	other := errors.New("connection reset")
	err = mapWriteError(other, "create supplier")
	assert.ErrorIs(t, err, other)
	assert.Empty(t, apperrors.KindOf(err))
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, defaultListLimit, 0},
		{10, 20, 10, 20},
		{10000, -5, maxListLimit, 0},
	}
	for _, tt := range tests {
		l, o := clampPage(tt.limit, tt.offset)
		assert.Equal(t, tt.wantLimit, l)
		assert.Equal(t, tt.wantOffset, o)
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% \_a\\b`, escapeLike(`100% _a\b`))
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	assert.Equal(t, "x", *nullIfEmpty("x"))
}
