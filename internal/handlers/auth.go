package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cosray/backend/internal/services"
	"github.com/cosray/backend/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Envelope is the response body of the headless auth routes.
type Envelope struct {
	Status int                   `json:"status"`
	Data   any                   `json:"data,omitempty"`
	Meta   *EnvelopeMeta         `json:"meta,omitempty"`
	Errors []services.FieldError `json:"errors,omitempty"`
}

type EnvelopeMeta struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	SessionToken    string `json:"session_token,omitempty"`
}

// Flow is a pending or available authentication step.
type Flow struct {
	ID        string `json:"id"`
	IsPending bool   `json:"is_pending,omitempty"`
}

// HeadlessUser is the user representation of the headless auth routes.
type HeadlessUser struct {
	ID                int    `json:"id"`
	Display           string `json:"display"`
	HasUsablePassword bool   `json:"has_usable_password"`
	Email             string `json:"email"`
	Username          string `json:"username"`
	EmailVerified     bool   `json:"email_verified"`
}

func headlessUser(user types.User) HeadlessUser {
	display := user.Name
	if display == "" {
		display = user.Username
	}
	return HeadlessUser{
		ID:                user.ID,
		Display:           display,
		HasUsablePassword: user.PasswordHash != "",
		Email:             user.Email,
		Username:          user.Username,
		EmailVerified:     user.EmailVerified,
	}
}

// AuthHandler serves the headless authentication API and the API token
// endpoint.
type AuthHandler struct {
	auth *services.AuthService
	log  zerolog.Logger
}

func NewAuthHandler(auth *services.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, log: log}
}

// AuthRouter registers the headless auth routes on the given router.
func AuthRouter(r chi.Router, auth *services.AuthService, log zerolog.Logger) {
	handler := NewAuthHandler(auth, log)

	r.Get("/config", handler.Config)
	r.Post("/auth/signup", handler.Signup)
	r.Post("/auth/email/verify", handler.VerifyEmail)
	r.Post("/auth/login", handler.Login)
	r.Get("/auth/session", handler.Session)
	r.Delete("/auth/session", handler.Logout)
}

func (h *AuthHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{
		Status: http.StatusOK,
		Data: map[string]any{
			"account": map[string]any{
				"login_methods":      []string{"username"},
				"is_open_for_signup": h.auth.RegistrationOpen(),
				"email_verification": "mandatory",
			},
		},
	})
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decode(w, r, &req) {
		return
	}

	_, err := h.auth.Signup(r.Context(), services.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writePending(w)
}

type VerifyEmailRequest struct {
	Key string `json:"key"`
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeEnvelopeErrors(w, http.StatusBadRequest, services.FieldError{Param: "key", Code: "required", Message: "This field is required."})
		return
	}

	user, err := h.auth.VerifyEmail(r.Context(), req.Key)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Status: http.StatusOK,
		Data:   map[string]any{"user": headlessUser(user)},
		Meta:   &EnvelopeMeta{IsAuthenticated: false},
	})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Status: http.StatusOK,
		Data: map[string]any{
			"user":    headlessUser(user),
			"methods": []map[string]any{{"method": "password", "at": user.LastLogin, "username": user.Username}},
		},
		Meta: &EnvelopeMeta{IsAuthenticated: true, SessionToken: token},
	})
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.SessionUser(r.Context(), r.Header.Get(sessionTokenHeader))
	if err != nil {
		if !errors.Is(err, services.ErrUnauthenticated) {
			h.log.Error().Err(err).Msg("failed to load session")
		}
		h.writeUnauthenticated(w)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Status: http.StatusOK,
		Data:   map[string]any{"user": headlessUser(user)},
		Meta:   &EnvelopeMeta{IsAuthenticated: true},
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := r.Header.Get(sessionTokenHeader); token != "" {
		if err := h.auth.Logout(r.Context(), token); err != nil {
			h.log.Error().Err(err).Msg("failed to revoke session")
		}
	}
	h.writeUnauthenticated(w)
}

type AuthTokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthTokenResponse struct {
	Token string `json:"token"`
}

// ObtainToken exchanges credentials for an API token.
func (h *AuthHandler) ObtainToken(w http.ResponseWriter, r *http.Request) {
	var req AuthTokenRequest
	if _, err := parseJSONBody(w, r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	fieldErrs := map[string][]string{}
	if strings.TrimSpace(req.Username) == "" {
		fieldErrs["username"] = []string{"This field is required."}
	}
	if req.Password == "" {
		fieldErrs["password"] = []string{"This field is required."}
	}
	if len(fieldErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrs)
		return
	}

	token, err := h.auth.IssueAuthToken(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, AuthTokenResponse{Token: token})
	case errors.Is(err, services.ErrInvalidCredentials):
		writeJSON(w, http.StatusBadRequest, map[string][]string{
			"non_field_errors": {"Unable to log in with provided credentials."},
		})
	case errors.Is(err, services.ErrEmailNotVerified):
		writeJSON(w, http.StatusBadRequest, map[string][]string{
			"non_field_errors": {"E-mail is not verified."},
		})
	default:
		h.log.Error().Err(err).Msg("failed to issue auth token")
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
	}
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if _, err := parseJSONBody(w, r, v); err != nil {
		writeEnvelopeErrors(w, http.StatusBadRequest, services.FieldError{Code: "invalid", Message: err.Error()})
		return false
	}
	return true
}

func (h *AuthHandler) writeServiceError(w http.ResponseWriter, err error) {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		writeEnvelopeErrors(w, http.StatusBadRequest, validation.Fields...)
	case errors.Is(err, services.ErrInvalidCredentials):
		writeEnvelopeErrors(w, http.StatusBadRequest, services.FieldError{
			Param:   "password",
			Code:    "username_password_mismatch",
			Message: "The username and/or password you specified are not correct.",
		})
	case errors.Is(err, services.ErrInvalidKey):
		writeEnvelopeErrors(w, http.StatusBadRequest, services.FieldError{
			Param:   "key",
			Code:    "invalid_or_expired_key",
			Message: "Invalid or expired key.",
		})
	case errors.Is(err, services.ErrEmailNotVerified):
		h.writePending(w)
	case errors.Is(err, services.ErrRegistrationClosed):
		writeJSON(w, http.StatusForbidden, Envelope{Status: http.StatusForbidden})
	default:
		h.log.Error().Err(err).Msg("auth request failed")
		writeEnvelopeErrors(w, http.StatusInternalServerError, services.FieldError{Code: "server_error", Message: "A server error occurred."})
	}
}

func (h *AuthHandler) flows() []Flow {
	flows := []Flow{{ID: "login"}}
	if h.auth.RegistrationOpen() {
		flows = append(flows, Flow{ID: "signup"})
	}
	return flows
}

func (h *AuthHandler) writePending(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, Envelope{
		Status: http.StatusUnauthorized,
		Data:   map[string]any{"flows": append(h.flows(), Flow{ID: "verify_email", IsPending: true})},
		Meta:   &EnvelopeMeta{IsAuthenticated: false},
	})
}

func (h *AuthHandler) writeUnauthenticated(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, Envelope{
		Status: http.StatusUnauthorized,
		Data:   map[string]any{"flows": h.flows()},
		Meta:   &EnvelopeMeta{IsAuthenticated: false},
	})
}

func writeEnvelopeErrors(w http.ResponseWriter, status int, errs ...services.FieldError) {
	writeJSON(w, status, Envelope{Status: status, Errors: errs})
}
