package handlers

import (
	"net/http"

	"github.com/alextreichler/storefront/internal/orders"
)

type OrderHandler struct {
	Orders *orders.Service
}

// CreateOrder places an order for the logged-in user.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, currentUser(r).ID)
}

// CreateOrderForUser places an order on behalf of userId; callers other than
// that user must be admins.
func (h *OrderHandler) CreateOrderForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !canAccessUser(currentUser(r), userID) {
		writeError(w, http.StatusForbidden, "forbidden", "Not allowed to order for this user")
		return
	}
	h.create(w, r, userID)
}

func (h *OrderHandler) create(w http.ResponseWriter, r *http.Request, userID int64) {
	var req orders.CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	o, err := h.Orders.CreateOrder(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrderHandler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !canAccessUser(currentUser(r), userID) {
		writeError(w, http.StatusForbidden, "forbidden", "Not allowed to view these orders")
		return
	}
	list, err := h.Orders.GetOrdersByUserID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	o, err := h.Orders.GetOrderByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !canAccessUser(currentUser(r), o.UserID) {
		writeError(w, http.StatusForbidden, "forbidden", "Not allowed to view this order")
		return
	}
	writeJSON(w, http.StatusOK, o)
}
