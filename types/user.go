package types

import "time"

// User represents an account in the system.
// It contains identity, permission flags, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address as stored on the account row.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsStaff grants access to staff-only endpoints such as the API schema.
	IsStaff bool `json:"is_staff" db:"is_staff"`

	// IsSuperuser marks an account with every permission.
	IsSuperuser bool `json:"is_superuser" db:"is_superuser"`

	// IsActive is false for disabled accounts, which cannot authenticate.
	IsActive bool `json:"is_active" db:"is_active"`

	// EmailVerified reports whether the primary email address is verified.
	// It is read from the email_addresses table.
	EmailVerified bool `json:"email_verified" db:"-"`

	// LastLogin is the timestamp of the most recent successful login.
	LastLogin *time.Time `json:"last_login,omitempty" db:"last_login"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// EmailAddress is an address attached to a user along with its verification state.
type EmailAddress struct {
	ID       int    `json:"id" db:"id"`
	UserID   int    `json:"user_id" db:"user_id"`
	Email    string `json:"email" db:"email"`
	Verified bool   `json:"verified" db:"verified"`
	Primary  bool   `json:"primary" db:"is_primary"`
}
