package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blockful/backoffice/internal/auth"
	"github.com/blockful/backoffice/internal/model"
	"github.com/blockful/backoffice/internal/service"
)

// UserHandler serves user administration under /auth/users. Every route
// requires an authenticated, active user.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleGetByID → GET /auth/users/{id}
func (h *UserHandler) HandleGetByID(w http.ResponseWriter, r *http.Request, _ auth.Result) {
	user, err := h.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, user, err)
}

// HandleGetByEmail → GET /auth/users/email/{email}
func (h *UserHandler) HandleGetByEmail(w http.ResponseWriter, r *http.Request, _ auth.Result) {
	user, err := h.users.GetByEmail(r.Context(), chi.URLParam(r, "email"))
	h.respond(w, user, err)
}

// HandleGetByProvider → GET /auth/users/provider/{provider}/{accountID}
func (h *UserHandler) HandleGetByProvider(w http.ResponseWriter, r *http.Request, _ auth.Result) {
	user, err := h.users.GetByProvider(r.Context(), chi.URLParam(r, "provider"), chi.URLParam(r, "accountID"))
	h.respond(w, user, err)
}

type updateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=200"`
	Avatar   *string `json:"avatar" validate:"omitempty,max=2048"`
	IsActive *bool   `json:"isActive"`
}

// HandleUpdate → PUT /auth/users/{id}
// REQUEST BODY: {"name": "...", "avatar": "...", "isActive": true}; all optional.
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request, res auth.Result) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	user, err := h.users.Update(r.Context(), id, service.UserPatch{
		Name:     req.Name,
		Avatar:   req.Avatar,
		IsActive: req.IsActive,
	})
	if err == nil {
		h.logger.Info("user changed by admin",
			slog.String("id", id),
			slog.String("by", res.User.ID),
		)
	}
	h.respond(w, user, err)
}

// HandleDelete → DELETE /auth/users/{id}
// Users are deactivated, not removed.
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request, _ auth.Result) {
	if err := h.users.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *UserHandler) respond(w http.ResponseWriter, user *model.User, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*model.User{"user": user})
}
