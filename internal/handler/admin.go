package handler

import (
	"log/slog"
	"net/http"

	"github.com/pavelanni/autograde/internal/auth"
	"github.com/pavelanni/autograde/internal/model"
)

func (h *Handler) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	role := model.UserRole(r.URL.Query().Get("role"))
	users, err := h.auth.ListUsers(r.Context(), role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in auth.NewUser
	if !decodeJSON(w, r, &in) {
		return
	}
	user, err := h.auth.CreateUser(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("user created by admin", "admin_id", currentUser(r).ID, "user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.auth.ToggleActive(r.Context(), currentUser(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
