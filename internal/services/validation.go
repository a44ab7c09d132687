package services

import (
	"strings"
	"unicode"

	"github.com/cosray/backend/internal/devuser"
)

const (
	minPasswordLength = 8
	maxPasswordBytes  = 72
	maxNameLength     = 255
)

func validateUsername(errs *ValidationError, username string) {
	switch {
	case username == "":
		errs.add("username", "required", "This field is required.")
	case !devuser.ValidUsername(username):
		errs.add("username", "invalid", "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	}
}

func validateEmail(errs *ValidationError, email string) {
	switch {
	case email == "":
		errs.add("email", "required", "This field is required.")
	case !devuser.ValidEmail(email):
		errs.add("email", "invalid", "Enter a valid email address.")
	}
}

func validatePassword(errs *ValidationError, password, username string) {
	switch {
	case password == "":
		errs.add("password", "required", "This field is required.")
		return
	case len([]rune(password)) < minPasswordLength:
		errs.add("password", "password_too_short", "This password is too short. It must contain at least 8 characters.")
	case len(password) > maxPasswordBytes:
		errs.add("password", "password_too_long", "This password is too long. It must be at most 72 bytes.")
		return
	}
	if isAllDigits(password) {
		errs.add("password", "password_entirely_numeric", "This password is entirely numeric.")
	}
	if username != "" && strings.EqualFold(password, username) {
		errs.add("password", "password_too_similar", "The password is too similar to the username.")
	}
}

// NormalizeName trims a display name and checks its length.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) > maxNameLength {
		errs := &ValidationError{}
		errs.add("name", "max_length", "Ensure this field has no more than 255 characters.")
		return "", errs
	}
	return name, nil
}

func isAllDigits(value string) bool {
	for _, r := range value {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return value != ""
}
