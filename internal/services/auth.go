package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cosray/backend/config"
	"github.com/cosray/backend/internal/cache"
	"github.com/cosray/backend/internal/mail"
	"github.com/cosray/backend/internal/store"
	"github.com/cosray/backend/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	purposeAuth        = "auth"
	purposeVerifyEmail = "verify_email"
	sessionKeyPrefix   = "session:"
	sessionTokenBytes  = 32
)

type tokenClaims struct {
	Purpose string `json:"purpose"`
	Email   string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AuthService implements signup, email verification, session login and
// API tokens.
type AuthService struct {
	users      UserRepository
	sessions   cache.Store
	mailer     mail.Sender
	secret     []byte
	accounts   config.AccountsConfig
	log        zerolog.Logger
	now        func() time.Time
	bcryptCost int
}

func NewAuthService(
	users UserRepository,
	sessions cache.Store,
	mailer mail.Sender,
	secretKey string,
	accounts config.AccountsConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions,
		mailer:     mailer,
		secret:     []byte(secretKey),
		accounts:   accounts,
		log:        log.With().Str("component", "auth").Logger(),
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// RegistrationOpen reports whether new accounts may sign up.
func (s *AuthService) RegistrationOpen() bool {
	return s.accounts.AllowRegistration
}

// SignupInput is the payload of a signup request.
type SignupInput struct {
	Username string
	Email    string
	Password string
}

// Signup creates an active account with an unverified primary email and
// mails a verification key to it.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (types.User, error) {
	if !s.accounts.AllowRegistration {
		return types.User{}, ErrRegistrationClosed
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	errs := &ValidationError{}
	validateUsername(errs, in.Username)
	validateEmail(errs, in.Email)
	validatePassword(errs, in.Password, in.Username)
	if err := errs.orNil(); err != nil {
		return types.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, address, err := s.users.CreateWithPrimaryEmail(ctx, types.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		IsActive:     true,
	}, false)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			errs.add("username", "username_taken", "A user with that username already exists.")
			return types.User{}, errs
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Str("username", user.Username).Int("user_id", user.ID).Msg("user signed up")
	s.sendVerification(ctx, user, address)
	return user, nil
}

// VerifyEmail marks the address bound to key as verified and returns its
// owner.
func (s *AuthService) VerifyEmail(ctx context.Context, key string) (types.User, error) {
	claims, err := s.parseToken(key, purposeVerifyEmail)
	if err != nil {
		return types.User{}, ErrInvalidKey
	}
	addressID, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return types.User{}, ErrInvalidKey
	}

	address, err := s.users.EmailAddressByID(ctx, addressID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidKey
		}
		return types.User{}, fmt.Errorf("load email address: %w", err)
	}
	if !strings.EqualFold(address.Email, claims.Email) {
		return types.User{}, ErrInvalidKey
	}

	if !address.Verified {
		if _, err := s.users.MarkEmailVerified(ctx, address.UserID, address.Email); err != nil {
			return types.User{}, fmt.Errorf("verify email: %w", err)
		}
	}
	return s.users.GetByID(ctx, address.UserID)
}

// Authenticate checks username and password. An account whose primary email
// is unverified gets a fresh key mailed and ErrEmailNotVerified.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.User{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return types.User{}, ErrInvalidCredentials
	}

	if !user.EmailVerified {
		address, err := s.users.PrimaryEmail(ctx, user.ID)
		switch {
		case err == nil:
			s.sendVerification(ctx, user, address)
		case !errors.Is(err, store.ErrNotFound):
			return types.User{}, fmt.Errorf("load primary email: %w", err)
		}
		return user, ErrEmailNotVerified
	}
	return user, nil
}

// Login authenticates and opens a session. It returns the session token.
func (s *AuthService) Login(ctx context.Context, username, password string) (types.User, string, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return user, "", err
	}

	token, err := newSessionToken()
	if err != nil {
		return types.User{}, "", err
	}
	if err := s.sessions.Set(ctx, sessionKeyPrefix+token, strconv.Itoa(user.ID), s.accounts.SessionTTL); err != nil {
		return types.User{}, "", fmt.Errorf("store session: %w", err)
	}

	s.touchLastLogin(ctx, &user)
	return user, token, nil
}

// SessionUser resolves a session token to its active user.
func (s *AuthService) SessionUser(ctx context.Context, token string) (types.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return types.User{}, ErrUnauthenticated
	}
	value, err := s.sessions.Get(ctx, sessionKeyPrefix+token)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, fmt.Errorf("load session: %w", err)
	}
	userID, err := strconv.Atoi(value)
	if err != nil {
		return types.User{}, ErrUnauthenticated
	}
	return s.activeUser(ctx, userID)
}

// Logout revokes a session token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, sessionKeyPrefix+strings.TrimSpace(token))
}

// IssueAuthToken authenticates and returns a signed API token.
func (s *AuthService) IssueAuthToken(ctx context.Context, username, password string) (string, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	token, err := s.signToken(purposeAuth, strconv.Itoa(user.ID), "", s.accounts.AuthTokenTTL)
	if err != nil {
		return "", err
	}
	s.touchLastLogin(ctx, &user)
	return token, nil
}

// TokenUser resolves an API token to its active user.
func (s *AuthService) TokenUser(ctx context.Context, raw string) (types.User, error) {
	claims, err := s.parseToken(raw, purposeAuth)
	if err != nil {
		return types.User{}, ErrUnauthenticated
	}
	userID, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return types.User{}, ErrUnauthenticated
	}
	return s.activeUser(ctx, userID)
}

func (s *AuthService) activeUser(ctx context.Context, userID int) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return types.User{}, ErrUnauthenticated
	}
	return user, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user types.User, address types.EmailAddress) {
	ttl := s.accounts.EmailVerificationTTL
	key, err := s.signToken(purposeVerifyEmail, strconv.Itoa(address.ID), address.Email, ttl)
	if err == nil {
		err = s.mailer.Send(ctx, mail.VerificationMessage(address.Email, user.Username, key, ttl))
	}
	if err != nil {
		s.log.Error().Err(err).Int("user_id", user.ID).Msg("failed to send verification email")
	}
}

func (s *AuthService) touchLastLogin(ctx context.Context, user *types.User) {
	at := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, at); err != nil {
		s.log.Warn().Err(err).Int("user_id", user.ID).Msg("failed to update last login")
		return
	}
	user.LastLogin = &at
}

func (s *AuthService) signToken(purpose, subject, email string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := tokenClaims{
		Purpose: purpose,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *AuthService) parseToken(raw, purpose string) (tokenClaims, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return tokenClaims{}, err
	}
	if claims.Purpose != purpose || strings.TrimSpace(claims.Subject) == "" {
		return tokenClaims{}, errors.New("token purpose mismatch")
	}
	return claims, nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
