package services

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/cosray/backend/config"
	"github.com/cosray/backend/internal/cache"
	"github.com/cosray/backend/internal/mail"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var keyPattern = regexp.MustCompile(`(?m)^([A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+)$`)

type authFixture struct {
	service *AuthService
	users   *memoryUsers
	outbox  *mail.Outbox
	clock   time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		users:  newMemoryUsers(),
		outbox: mail.NewOutbox("noreply@example.com"),
		clock:  time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	f.service = NewAuthService(f.users, cache.NewMemory(), f.outbox, "test-secret", config.AccountsConfig{
		AllowRegistration:    true,
		SessionTTL:           14 * 24 * time.Hour,
		AuthTokenTTL:         24 * time.Hour,
		EmailVerificationTTL: 72 * time.Hour,
	}, zerolog.Nop())
	f.service.now = func() time.Time { return f.clock }
	f.service.bcryptCost = bcrypt.MinCost
	return f
}

func (f *authFixture) lastKey(t *testing.T) string {
	t.Helper()
	messages := f.outbox.Messages()
	require.NotEmpty(t, messages)
	match := keyPattern.FindStringSubmatch(messages[len(messages)-1].Body)
	require.Len(t, match, 2)
	return match[1]
}

func (f *authFixture) signup(t *testing.T, username string) {
	t.Helper()
	_, err := f.service.Signup(context.Background(), SignupInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "s3cure-pass",
	})
	require.NoError(t, err)
}

func TestSignupSendsVerification(t *testing.T) {
	f := newAuthFixture(t)

	user, err := f.service.Signup(context.Background(), SignupInput{
		Username: " alice ",
		Email:    "alice@example.com",
		Password: "s3cure-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.False(t, user.EmailVerified)
	assert.True(t, user.IsActive)

	messages := f.outbox.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, []string{"alice@example.com"}, messages[0].To)
	assert.Equal(t, mail.VerificationSubject, messages[0].Subject)
}

func TestSignupValidation(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.service.Signup(context.Background(), SignupInput{Username: "bad name", Email: "nope", Password: "12345678"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	codes := map[string]string{}
	for _, field := range verr.Fields {
		codes[field.Param] = field.Code
	}
	assert.Equal(t, "invalid", codes["username"])
	assert.Equal(t, "invalid", codes["email"])
	assert.Equal(t, "password_entirely_numeric", codes["password"])
}

func TestSignupPasswordRules(t *testing.T) {
	f := newAuthFixture(t)
	tests := map[string]string{
		"short":                    "password_too_short",
		"alice12":                  "password_too_short",
		"AliceWonder":              "password_too_similar",
		strings.Repeat("Ab1!", 20): "password_too_long",
	}
	for password, code := range tests {
		_, err := f.service.Signup(context.Background(), SignupInput{Username: "alicewonder", Email: "a@example.com", Password: password})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, password)
		assert.Equal(t, code, verr.Fields[0].Code, password)
	}
}

func TestSignupDuplicateUsername(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")

	_, err := f.service.Signup(context.Background(), SignupInput{Username: "alice", Email: "other@example.com", Password: "another-pass"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "username_taken", verr.Fields[0].Code)
}

func TestSignupClosed(t *testing.T) {
	f := newAuthFixture(t)
	f.service.accounts.AllowRegistration = false

	_, err := f.service.Signup(context.Background(), SignupInput{Username: "alice", Email: "a@example.com", Password: "s3cure-pass"})
	assert.ErrorIs(t, err, ErrRegistrationClosed)
	assert.False(t, f.service.RegistrationOpen())
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")

	_, _, err := f.service.Login(context.Background(), "alice", "s3cure-pass")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
	assert.Len(t, f.outbox.Messages(), 2)

	user, err := f.service.VerifyEmail(context.Background(), f.lastKey(t))
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)

	user, token, err := f.service.Login(context.Background(), "alice", "s3cure-pass")
	require.NoError(t, err)
	assert.Len(t, token, 64)
	require.NotNil(t, user.LastLogin)
	assert.Equal(t, f.clock, *user.LastLogin)

	sessionUser, err := f.service.SessionUser(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, sessionUser.ID)

	require.NoError(t, f.service.Logout(context.Background(), token))
	_, err = f.service.SessionUser(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLoginWrongCredentials(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")

	_, _, err := f.service.Login(context.Background(), "alice", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = f.service.Login(context.Background(), "nobody", "s3cure-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = f.service.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginInactiveUser(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	_, err := f.service.VerifyEmail(context.Background(), f.lastKey(t))
	require.NoError(t, err)

	user, err := f.users.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	user.IsActive = false
	_, err = f.users.Update(context.Background(), user)
	require.NoError(t, err)

	_, _, err = f.service.Login(context.Background(), "alice", "s3cure-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyEmailRejectsBadKeys(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	key := f.lastKey(t)

	_, err := f.service.VerifyEmail(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidKey)

	f.clock = f.clock.Add(73 * time.Hour)
	_, err = f.service.VerifyEmail(context.Background(), key)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestVerifyEmailKeyBoundToAddress(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	key := f.lastKey(t)

	address := f.users.addresses[1]
	address.Email = "changed@example.com"
	f.users.addresses[1] = address

	_, err := f.service.VerifyEmail(context.Background(), key)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestAuthTokens(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	verifyKey := f.lastKey(t)
	_, err := f.service.VerifyEmail(context.Background(), verifyKey)
	require.NoError(t, err)

	token, err := f.service.IssueAuthToken(context.Background(), "alice", "s3cure-pass")
	require.NoError(t, err)

	user, err := f.service.TokenUser(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = f.service.TokenUser(context.Background(), verifyKey)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	f.clock = f.clock.Add(25 * time.Hour)
	_, err = f.service.TokenUser(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSessionUserUnknownToken(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.service.SessionUser(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = f.service.SessionUser(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
