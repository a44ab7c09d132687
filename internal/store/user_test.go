package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cosray/backend/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{
	"id", "username", "email", "name", "password_hash",
	"is_staff", "is_superuser", "is_active", "last_login",
	"created_at", "updated_at", "verified",
}

func newMockRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUserRepository(db), mock
}

func TestGetByUsername(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`FROM users u\s+LEFT JOIN email_addresses e .*WHERE u.username = \$1`).
		WithArgs("test").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			7, "test", "localtester@example.com", "", "hash",
			false, false, true, now,
			now, now, true,
		))

	user, err := repo.GetByUsername(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 7, user.ID)
	assert.Equal(t, "localtester@example.com", user.Email)
	assert.True(t, user.EmailVerified)
	assert.True(t, user.IsActive)
	require.NotNil(t, user.LastLogin)
	assert.Equal(t, now, *user.LastLogin)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`WHERE u.id = \$1`).
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithPrimaryEmail(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("test", "localtester@example.com", "", "hash", true, false, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO email_addresses`).
		WithArgs(1, "localtester@example.com", true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectCommit()

	user, address, err := repo.CreateWithPrimaryEmail(context.Background(), types.User{
		Username:     "test",
		Email:        "localtester@example.com",
		PasswordHash: "hash",
		IsStaff:      true,
		IsActive:     true,
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, user.ID)
	assert.True(t, user.EmailVerified)
	assert.Equal(t, types.EmailAddress{ID: 10, UserID: 1, Email: "localtester@example.com", Verified: true, Primary: true}, address)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithPrimaryEmailUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	_, _, err := repo.CreateWithPrimaryEmail(context.Background(), types.User{Username: "test"}, true)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithPrimaryEmailRollsBackOnEmailFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO email_addresses`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, _, err := repo.CreateWithPrimaryEmail(context.Background(), types.User{Username: "test"}, false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEmailVerified(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`ON CONFLICT \(user_id, email\) DO UPDATE`).
		WithArgs(3, "a@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`ON CONFLICT \(user_id, email\) DO UPDATE`).
		WithArgs(3, "a@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	written, err := repo.MarkEmailVerified(context.Background(), 3, "a@example.com")
	require.NoError(t, err)
	assert.True(t, written)

	written, err = repo.MarkEmailVerified(context.Background(), 3, "a@example.com")
	require.NoError(t, err)
	assert.False(t, written)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPrimaryEmail(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM email_addresses\s+WHERE user_id = \$1 AND is_primary`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "email", "verified", "is_primary"}).
			AddRow(4, 3, "a@example.com", false, true))

	address, err := repo.PrimaryEmail(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", address.Email)
	assert.False(t, address.Verified)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE users`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Update(context.Background(), types.User{ID: 5, Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchLastLogin(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Now()

	mock.ExpectExec(`UPDATE users SET last_login = \$1 WHERE id = \$2`).
		WithArgs(at, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.TouchLastLogin(context.Background(), 5, at))
	require.NoError(t, mock.ExpectationsWereMet())
}
