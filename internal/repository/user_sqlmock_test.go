package repository

import (
	"context"
	"errors"
	"testing"

	"quad/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestUserRepository_GetByID_SQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "username", "email"}).
			AddRow("u1", "casey", "casey@quad.local")
		mock.ExpectQuery(`SELECT \* FROM "users"`).
			WillReturnRows(rows)

		user, err := repo.GetByID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "casey", user.Username)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found maps to app error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "users"`).
			WillReturnError(gorm.ErrRecordNotFound)

		_, err := repo.GetByID(ctx, "missing")
		assert.True(t, models.IsNotFoundError(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver error passes through", func(t *testing.T) {
		driverErr := errors.New("connection reset")
		mock.ExpectQuery(`SELECT \* FROM "users"`).
			WillReturnError(driverErr)

		_, err := repo.GetByID(ctx, "u1")
		require.Error(t, err)
		assert.False(t, models.IsNotFoundError(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVoteRepository_Delete_SQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewVoteRepository(db)

	// Soft delete issues an UPDATE on deleted_at.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "votes" SET "deleted_at"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "v1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
