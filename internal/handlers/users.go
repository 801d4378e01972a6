package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alextreichler/storefront/internal/models"
	"github.com/alextreichler/storefront/internal/store"
)

type UserHandler struct {
	Store *store.Store
}

type updateUserRequest struct {
	Email       string `json:"email" validate:"omitempty,email,max=255"`
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"required,max=100"`
	Role        string `json:"role" validate:"omitempty,oneof=USER ADMIN"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	ZipCode     string `json:"zipCode"`
	Country     string `json:"country"`
	PhoneNumber string `json:"phoneNumber"`
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !canAccessUser(currentUser(r), id) {
		writeError(w, http.StatusForbidden, "forbidden", "Not allowed to view this user")
		return
	}
	u, err := h.Store.GetUserByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateUser edits a profile. Users may edit themselves; only admins may
// change a role.
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	caller := currentUser(r)
	if !canAccessUser(caller, id) {
		writeError(w, http.StatusForbidden, "forbidden", "Not allowed to edit this user")
		return
	}

	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	u, err := h.Store.GetUserByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Role != "" && models.Role(req.Role) != u.Role {
		if !caller.IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden", "Only admins can change roles")
			return
		}
		u.Role = models.Role(req.Role)
	}
	if req.Email != "" {
		u.Email = req.Email
	}
	u.FirstName = req.FirstName
	u.LastName = req.LastName
	u.Address = req.Address
	u.City = req.City
	u.State = req.State
	u.ZipCode = req.ZipCode
	u.Country = req.Country
	u.PhoneNumber = req.PhoneNumber

	if err := h.Store.UpdateUser(r.Context(), u); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	role := models.Role(strings.ToUpper(r.URL.Query().Get("role")))
	if role != "" && !role.Valid() {
		writeError(w, http.StatusBadRequest, "validation_failed", "role: must be one of: USER ADMIN")
		return
	}
	users, err := h.Store.ListUsers(r.Context(), role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) ToggleRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	u, err := h.Store.GetUserByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	next := models.RoleAdmin
	if u.IsAdmin() {
		next = models.RoleUser
	}
	if err := h.Store.UpdateUserRole(r.Context(), id, next); err != nil {
		writeServiceError(w, r, err)
		return
	}
	u.Role = next
	slog.Info("User role changed", "user_id", id, "role", next, "admin_id", currentUser(r).ID)
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.Store.DeleteUser(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	slog.Info("User deleted", "user_id", id, "admin_id", currentUser(r).ID)
	w.WriteHeader(http.StatusNoContent)
}
