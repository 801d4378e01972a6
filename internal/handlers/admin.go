package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/alextreichler/storefront/internal/reporting"
	"github.com/alextreichler/storefront/internal/store"
)

type AdminHandler struct {
	Store *store.Store
	Stats *reporting.Aggregator
}

func (h *AdminHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Stats.DashboardStats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "driver": h.Store.Driver()})
}
