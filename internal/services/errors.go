package services

import (
	"errors"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrRegistrationClosed = errors.New("registration is closed")
	ErrInvalidKey         = errors.New("invalid or expired key")
	ErrUnauthenticated    = errors.New("not authenticated")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Param   string `json:"param,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError collects field errors for a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		messages = append(messages, field.Param+": "+field.Message)
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

func (e *ValidationError) add(param, code, message string) {
	e.Fields = append(e.Fields, FieldError{Param: param, Code: code, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
