package property

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_ExistsActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("Active", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM properties WHERE id = \$1 AND is_deleted = false\)`).
			WithArgs("P1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := repo.ExistsActive(ctx, "P1")
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("DeletedOrMissing", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("P2").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		ok, err := repo.ExistsActive(ctx, "P2")
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.ExistsActive(ctx, "P1")
		assert.ErrorContains(t, err, "check property P1")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
