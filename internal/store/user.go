package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cosray/backend/types"
)

const selectUser = `
		SELECT u.id, u.username, u.email, u.name, u.password_hash,
			u.is_staff, u.is_superuser, u.is_active, u.last_login,
			u.created_at, u.updated_at, COALESCE(e.verified, FALSE)
		FROM users u
		LEFT JOIN email_addresses e ON e.user_id = u.id AND e.is_primary`

// UserRepository handles persistence for users and their email addresses.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user      types.User
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.IsStaff,
		&user.IsSuperuser,
		&user.IsActive,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.EmailVerified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	if lastLogin.Valid {
		at := lastLogin.Time
		user.LastLogin = &at
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = selectUser + `
		WHERE u.id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = selectUser + `
		WHERE u.username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

// Create inserts the account row only. Use CreateWithPrimaryEmail to also
// record the address.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (username, email, name, password_hash, is_staff, is_superuser, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.IsStaff,
		user.IsSuperuser,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, mapWriteError(err)
	}
	return user, nil
}

// CreateWithPrimaryEmail inserts the user and its primary email address in a
// single transaction.
func (r *UserRepository) CreateWithPrimaryEmail(ctx context.Context, user types.User, verified bool) (types.User, types.EmailAddress, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.User{}, types.EmailAddress{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const insertUser = `
		INSERT INTO users (username, email, name, password_hash, is_staff, is_superuser, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		insertUser,
		user.Username,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.IsStaff,
		user.IsSuperuser,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, types.EmailAddress{}, mapWriteError(err)
	}

	address := types.EmailAddress{
		UserID:   user.ID,
		Email:    user.Email,
		Verified: verified,
		Primary:  true,
	}
	const insertEmail = `
		INSERT INTO email_addresses (user_id, email, verified, is_primary)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id`
	if err := tx.QueryRowContext(ctx, insertEmail, address.UserID, address.Email, address.Verified).Scan(&address.ID); err != nil {
		return types.User{}, types.EmailAddress{}, mapWriteError(err)
	}

	if err := tx.Commit(); err != nil {
		return types.User{}, types.EmailAddress{}, fmt.Errorf("commit tx: %w", err)
	}

	user.EmailVerified = verified
	return user, address, nil
}

// Update writes the mutable profile fields and flags.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET email = $1,
			name = $2,
			is_staff = $3,
			is_superuser = $4,
			is_active = $5,
			updated_at = $6
		WHERE id = $7`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Email,
		user.Name,
		user.IsStaff,
		user.IsSuperuser,
		user.IsActive,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, mapWriteError(err)
	}
	if err := expectAffected(result); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) SetPassword(ctx context.Context, id int, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id int, at time.Time) error {
	const query = `UPDATE users SET last_login = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *UserRepository) PrimaryEmail(ctx context.Context, userID int) (types.EmailAddress, error) {
	const query = `
		SELECT id, user_id, email, verified, is_primary
		FROM email_addresses
		WHERE user_id = $1 AND is_primary`
	return scanEmailAddress(r.db.QueryRowContext(ctx, query, userID))
}

func (r *UserRepository) EmailAddressByID(ctx context.Context, id int) (types.EmailAddress, error) {
	const query = `
		SELECT id, user_id, email, verified, is_primary
		FROM email_addresses
		WHERE id = $1`
	return scanEmailAddress(r.db.QueryRowContext(ctx, query, id))
}

// MarkEmailVerified records email as verified for the user, inserting the
// address (as primary when the user has none) if it is missing. It reports
// whether a row was written.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, userID int, email string) (bool, error) {
	const query = `
		INSERT INTO email_addresses (user_id, email, verified, is_primary)
		VALUES ($1, $2, TRUE, NOT EXISTS (
			SELECT 1 FROM email_addresses WHERE user_id = $1 AND is_primary
		))
		ON CONFLICT (user_id, email) DO UPDATE
		SET verified = TRUE
		WHERE email_addresses.verified = FALSE`
	result, err := r.db.ExecContext(ctx, query, userID, email)
	if err != nil {
		return false, mapWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanEmailAddress(row rowScanner) (types.EmailAddress, error) {
	var address types.EmailAddress
	err := row.Scan(
		&address.ID,
		&address.UserID,
		&address.Email,
		&address.Verified,
		&address.Primary,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.EmailAddress{}, ErrNotFound
		}
		return types.EmailAddress{}, err
	}
	return address, nil
}

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
