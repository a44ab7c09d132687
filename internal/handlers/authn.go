package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cosray/backend/internal/services"
	"github.com/cosray/backend/types"
	"github.com/rs/zerolog"
)

const sessionTokenHeader = "X-Session-Token"

var errNoCredentials = errors.New("no credentials")

// Authenticator resolves the caller from a session token or an API token.
type Authenticator struct {
	auth *services.AuthService
	log  zerolog.Logger
}

func NewAuthenticator(auth *services.AuthService, log zerolog.Logger) *Authenticator {
	return &Authenticator{auth: auth, log: log}
}

// RequireUser rejects requests without valid credentials and stores the
// user in the request context.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.resolve(r)
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		case errors.Is(err, errNoCredentials):
			w.Header().Set("WWW-Authenticate", `Token`)
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
		case errors.Is(err, services.ErrUnauthenticated):
			w.Header().Set("WWW-Authenticate", `Token`)
			writeDetail(w, http.StatusUnauthorized, "Invalid token.")
		default:
			a.log.Error().Err(err).Msg("failed to authenticate request")
			writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		}
	})
}

// RequireStaff must run after RequireUser.
func (a *Authenticator) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok || !(user.IsStaff || user.IsSuperuser) {
			writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) resolve(r *http.Request) (types.User, error) {
	if token := strings.TrimSpace(r.Header.Get(sessionTokenHeader)); token != "" {
		return a.auth.SessionUser(r.Context(), token)
	}
	if token, ok := authorizationToken(r); ok {
		return a.auth.TokenUser(r.Context(), token)
	}
	return types.User{}, errNoCredentials
}

// authorizationToken accepts "Bearer <token>" and "Token <token>".
func authorizationToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found {
		return "", false
	}
	if !strings.EqualFold(scheme, "Bearer") && !strings.EqualFold(scheme, "Token") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
