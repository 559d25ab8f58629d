package inventory

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-dealer/internal/common"
	"github.com/noah-isme/backend-dealer/internal/resilience"
)

// Handler exposes vehicle lookups.
type Handler struct {
	Client *Client
}

// Vehicle handles GET /api/v1/vehicles/{vin}.
func (h Handler) Vehicle(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "inventory lookup not configured", nil)
		return
	}
	v, err := h.Client.Vehicle(r.Context(), chi.URLParam(r, "vin"))
	switch {
	case err == nil:
		common.Data(w, http.StatusOK, map[string]any{
			"vehicle":     v,
			"listedPrice": v.ListedPrice(),
		})
	case errors.Is(err, ErrVehicleNotFound):
		common.JSONError(w, http.StatusNotFound, "VEHICLE_NOT_FOUND", "vehicle not found in inventory", nil)
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, "INVENTORY_UNAVAILABLE", "inventory search is temporarily unavailable", nil)
	default:
		common.JSONError(w, http.StatusBadGateway, "INVENTORY_ERROR", "inventory search failed", nil)
	}
}
