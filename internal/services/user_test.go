package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestUpdateName(t *testing.T) {
	users := newMemoryUsers()
	service := NewUserService(users)
	user, _, err := users.CreateWithPrimaryEmail(context.Background(), testUser("alice"), true)
	require.NoError(t, err)

	updated, err := service.UpdateName(context.Background(), user, "  Alice Liddell ")
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", updated.Name)

	_, err = service.UpdateName(context.Background(), user, strings.Repeat("x", 256))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Fields[0].Param)
}

func TestCreateSuperuser(t *testing.T) {
	users := newMemoryUsers()
	service := NewUserService(users)
	service.bcryptCost = bcrypt.MinCost

	user, err := service.CreateSuperuser(context.Background(), CreateSuperuserInput{
		Username: "admin",
		Email:    "admin@example.com",
		Password: "root-pass",
	})
	require.NoError(t, err)
	assert.True(t, user.IsStaff)
	assert.True(t, user.IsSuperuser)
	assert.True(t, user.EmailVerified)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("root-pass")))

	_, err = service.CreateSuperuser(context.Background(), CreateSuperuserInput{
		Username: "admin",
		Email:    "admin@example.com",
		Password: "root-pass",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "username_taken", verr.Fields[0].Code)

	_, err = service.CreateSuperuser(context.Background(), CreateSuperuserInput{
		Username: "admin2",
		Email:    "admin2@example.com",
		Password: strings.Repeat("p", 73),
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password_too_long", verr.Fields[0].Code)

	_, err = service.CreateSuperuser(context.Background(), CreateSuperuserInput{Username: "x y", Email: "bad"})
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
}
