// Package devuser provisions the known, verified test account used during
// local development. It runs once after schema migrations complete.
package devuser

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/cosray/backend/config"
	"github.com/cosray/backend/internal/store"
	"github.com/cosray/backend/types"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxUsernameLength = 150
	maxPasswordBytes  = 72
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// Config describes the account to provision.
type Config struct {
	Enabled     bool
	Username    string
	Password    string
	Email       string
	Name        string
	IsStaff     bool
	IsSuperuser bool
}

// DefaultConfig returns the settings used when no override is present.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Username: "test",
		Password: "LocalPass123!",
		Email:    "localtester@example.com",
	}
}

// ConfigFrom maps the LOCAL_DEV_TEST_USER_* settings.
func ConfigFrom(cfg config.TestUserConfig) Config {
	return Config{
		Enabled:     cfg.Enabled,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Email:       cfg.Email,
		Name:        cfg.Name,
		IsStaff:     cfg.IsStaff,
		IsSuperuser: cfg.IsSuperuser,
	}
}

// Outcome reports what Provision did.
type Outcome int

const (
	OutcomeDisabled Outcome = iota
	OutcomeCreated
	OutcomeExisting
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDisabled:
		return "disabled"
	case OutcomeCreated:
		return "created"
	case OutcomeExisting:
		return "existing"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ConfigurationError is returned when the provisioner is enabled but a
// required setting is missing or malformed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("test user configuration: %s %s", e.Field, e.Reason)
}

// PersistenceError wraps a failure of the account store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("test user %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// AccountStore is the subset of the user repository the provisioner needs.
type AccountStore interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	CreateWithPrimaryEmail(ctx context.Context, user types.User, verified bool) (types.User, types.EmailAddress, error)
	PrimaryEmail(ctx context.Context, userID int) (types.EmailAddress, error)
	MarkEmailVerified(ctx context.Context, userID int, email string) (bool, error)
}

// Provisioner creates the test account if it is absent.
type Provisioner struct {
	cfg        Config
	accounts   AccountStore
	log        zerolog.Logger
	bcryptCost int
}

// Option customizes a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the logger used for outcome messages.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Provisioner) {
		p.log = log
	}
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(p *Provisioner) {
		p.bcryptCost = cost
	}
}

func NewProvisioner(cfg Config, accounts AccountStore, opts ...Option) *Provisioner {
	p := &Provisioner{
		cfg:        cfg,
		accounts:   accounts,
		log:        zerolog.Nop(),
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision makes sure the configured account exists with a verified primary
// email. Existing accounts keep their password, email, name and flags.
func (p *Provisioner) Provision(ctx context.Context) (Outcome, error) {
	if !p.cfg.Enabled {
		return OutcomeDisabled, nil
	}

	cfg, err := p.cfg.normalized()
	if err != nil {
		return OutcomeDisabled, err
	}

	existing, err := p.accounts.GetByUsername(ctx, cfg.Username)
	switch {
	case err == nil:
		return p.reconcile(ctx, existing)
	case !errors.Is(err, store.ErrNotFound):
		return OutcomeDisabled, &PersistenceError{Op: "lookup", Err: err}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), p.bcryptCost)
	if err != nil {
		return OutcomeDisabled, fmt.Errorf("hash test user password: %w", err)
	}

	created, _, err := p.accounts.CreateWithPrimaryEmail(ctx, types.User{
		Username:     cfg.Username,
		Email:        cfg.Email,
		Name:         cfg.Name,
		PasswordHash: string(hash),
		IsStaff:      cfg.IsStaff,
		IsSuperuser:  cfg.IsSuperuser,
		IsActive:     true,
	}, true)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost an insert race; the row is there now.
			existing, lookupErr := p.accounts.GetByUsername(ctx, cfg.Username)
			if lookupErr != nil {
				return OutcomeDisabled, &PersistenceError{Op: "lookup", Err: lookupErr}
			}
			return p.reconcile(ctx, existing)
		}
		return OutcomeDisabled, &PersistenceError{Op: "create", Err: err}
	}

	p.log.Info().
		Str("username", created.Username).
		Int("user_id", created.ID).
		Bool("is_staff", created.IsStaff).
		Bool("is_superuser", created.IsSuperuser).
		Msg("created local test user")
	return OutcomeCreated, nil
}

func (p *Provisioner) reconcile(ctx context.Context, user types.User) (Outcome, error) {
	if user.EmailVerified {
		p.log.Debug().Str("username", user.Username).Msg("local test user already present")
		return OutcomeExisting, nil
	}

	email := user.Email
	primary, err := p.accounts.PrimaryEmail(ctx, user.ID)
	switch {
	case err == nil:
		if primary.Verified {
			return OutcomeExisting, nil
		}
		email = primary.Email
	case !errors.Is(err, store.ErrNotFound):
		return OutcomeDisabled, &PersistenceError{Op: "lookup email", Err: err}
	}

	if strings.TrimSpace(email) == "" {
		return OutcomeExisting, nil
	}

	written, err := p.accounts.MarkEmailVerified(ctx, user.ID, email)
	if err != nil {
		return OutcomeDisabled, &PersistenceError{Op: "verify email", Err: err}
	}
	if written {
		p.log.Info().Str("username", user.Username).Msg("marked local test user email verified")
	}
	return OutcomeExisting, nil
}

func (c Config) normalized() (Config, error) {
	c.Username = strings.TrimSpace(c.Username)
	c.Email = strings.TrimSpace(c.Email)
	c.Name = strings.TrimSpace(c.Name)

	if c.Username == "" {
		return Config{}, &ConfigurationError{Field: "username", Reason: "is required"}
	}
	if len(c.Username) > maxUsernameLength {
		return Config{}, &ConfigurationError{Field: "username", Reason: fmt.Sprintf("exceeds %d characters", maxUsernameLength)}
	}
	if !usernamePattern.MatchString(c.Username) {
		return Config{}, &ConfigurationError{Field: "username", Reason: "may only contain letters, digits and @/./+/-/_"}
	}
	if c.Password == "" {
		return Config{}, &ConfigurationError{Field: "password", Reason: "is required"}
	}
	if len(c.Password) > maxPasswordBytes {
		return Config{}, &ConfigurationError{Field: "password", Reason: fmt.Sprintf("exceeds %d bytes", maxPasswordBytes)}
	}
	if c.Email == "" {
		return Config{}, &ConfigurationError{Field: "email", Reason: "is required"}
	}
	if !ValidEmail(c.Email) {
		return Config{}, &ConfigurationError{Field: "email", Reason: "is not a valid address"}
	}
	return c, nil
}

// ValidUsername reports whether value is an acceptable login name.
func ValidUsername(value string) bool {
	return len(value) <= maxUsernameLength && usernamePattern.MatchString(value)
}

// ValidEmail reports whether value is a bare address such as a@example.com.
func ValidEmail(value string) bool {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || addr.Name != "" {
		return false
	}
	at := strings.LastIndex(value, "@")
	return at > 0 && strings.Contains(value[at+1:], ".")
}
