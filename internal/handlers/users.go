package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/cosray/backend/internal/services"
	"github.com/cosray/backend/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// UserResponse is the public representation of an account.
type UserResponse struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}

// UserHandler serves the users API. Callers only ever see their own record.
type UserHandler struct {
	users *services.UserService
	log   zerolog.Logger
}

func NewUserHandler(users *services.UserService, log zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, users *services.UserService, authMiddleware func(http.Handler) http.Handler, log zerolog.Logger) {
	handler := NewUserHandler(users, log)

	r.Use(authMiddleware)
	r.Get("/", handler.List)
	r.Get("/me/", handler.Me)
	r.Get("/{username}/", handler.Retrieve)
	r.Put("/{username}/", handler.Update)
	r.Patch("/{username}/", handler.Update)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, []UserResponse{userResponse(r, user)})
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, userResponse(r, user))
}

func (h *UserHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	user, ok := h.ownRecord(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, userResponse(r, user))
}

type UpdateUserRequest struct {
	Name *string `json:"name"`
}

// Update changes the display name. PUT requires name; PATCH may omit it.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := h.ownRecord(w, r)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if _, err := parseJSONBody(w, r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == nil {
		if r.Method == http.MethodPut {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"name": {"This field is required."}})
			return
		}
		writeJSON(w, http.StatusOK, userResponse(r, user))
		return
	}

	updated, err := h.users.UpdateName(r.Context(), user, *req.Name)
	if err != nil {
		var validation *services.ValidationError
		if errors.As(err, &validation) {
			writeJSON(w, http.StatusBadRequest, fieldMessages(validation))
			return
		}
		h.log.Error().Err(err).Int("user_id", user.ID).Msg("failed to update user")
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	writeJSON(w, http.StatusOK, userResponse(r, updated))
}

func (h *UserHandler) ownRecord(w http.ResponseWriter, r *http.Request) (types.User, bool) {
	user, _ := userFromContext(r.Context())
	if chi.URLParam(r, "username") != user.Username {
		writeDetail(w, http.StatusNotFound, "No User matches the given query.")
		return types.User{}, false
	}
	return user, true
}

func userResponse(r *http.Request, user types.User) UserResponse {
	return UserResponse{
		Username: user.Username,
		Name:     user.Name,
		URL:      absoluteURL(r, "/api/users/"+url.PathEscape(user.Username)+"/"),
	}
}

func fieldMessages(validation *services.ValidationError) map[string][]string {
	out := make(map[string][]string, len(validation.Fields))
	for _, field := range validation.Fields {
		param := field.Param
		if param == "" {
			param = "non_field_errors"
		}
		out[param] = append(out[param], field.Message)
	}
	return out
}
