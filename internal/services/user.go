package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cosray/backend/internal/store"
	"github.com/cosray/backend/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	TouchLastLogin(ctx context.Context, id int, at time.Time) error
	CreateWithPrimaryEmail(ctx context.Context, user types.User, verified bool) (types.User, types.EmailAddress, error)
	PrimaryEmail(ctx context.Context, userID int) (types.EmailAddress, error)
	EmailAddressByID(ctx context.Context, id int) (types.EmailAddress, error)
	MarkEmailVerified(ctx context.Context, userID int, email string) (bool, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo       UserRepository
	bcryptCost int
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo, bcryptCost: bcrypt.DefaultCost}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// UpdateName changes the display name of user.
func (s *UserService) UpdateName(ctx context.Context, user types.User, name string) (types.User, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return types.User{}, err
	}
	user.Name = name
	return s.repo.Update(ctx, user)
}

// CreateSuperuserInput holds the values for a new administrator account.
type CreateSuperuserInput struct {
	Username string
	Email    string
	Name     string
	Password string
}

// CreateSuperuser creates a staff superuser whose primary email is verified.
func (s *UserService) CreateSuperuser(ctx context.Context, in CreateSuperuserInput) (types.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	errs := &ValidationError{}
	validateUsername(errs, in.Username)
	validateEmail(errs, in.Email)
	switch {
	case in.Password == "":
		errs.add("password", "required", "This field is required.")
	case len(in.Password) > maxPasswordBytes:
		errs.add("password", "password_too_long", "This password is too long. It must be at most 72 bytes.")
	}
	name, err := NormalizeName(in.Name)
	if err != nil {
		var nameErrs *ValidationError
		if errors.As(err, &nameErrs) {
			errs.Fields = append(errs.Fields, nameErrs.Fields...)
		}
	}
	if err := errs.orNil(); err != nil {
		return types.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, _, err := s.repo.CreateWithPrimaryEmail(ctx, types.User{
		Username:     in.Username,
		Email:        in.Email,
		Name:         name,
		PasswordHash: string(hash),
		IsStaff:      true,
		IsSuperuser:  true,
		IsActive:     true,
	}, true)
	if errors.Is(err, store.ErrConflict) {
		errs.add("username", "username_taken", "A user with that username already exists.")
		return types.User{}, errs
	}
	return user, err
}
