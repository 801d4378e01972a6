package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ListOrders returns every order, optionally narrowed by ?status= and ?userId=.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var userID int64
	if v := q.Get("userId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "userId: must be a positive integer")
			return
		}
		userID = id
	}

	list, err := h.Orders.SearchOrders(r.Context(), userID, q.Get("status"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrderHandler) ListOrdersByStatus(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.GetOrdersByStatus(r.Context(), chi.URLParam(r, "status"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrderHandler) RecentOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.GetRecentOrders(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// UpdateOrderStatus takes the new status from ?status=.
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := r.URL.Query().Get("status")
	if status == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "status: is required")
		return
	}
	o, err := h.Orders.UpdateOrderStatus(r.Context(), id, status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
