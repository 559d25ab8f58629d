package deals

import (
	"context"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-dealer/internal/common"
)

// Lister reads archived deals.
type Lister interface {
	ListByVIN(ctx context.Context, vin string, limit int) ([]SavedDeal, error)
}

// Handler exposes saved deal endpoints.
type Handler struct {
	Store Lister
}

// List handles GET /api/v1/deals?vin=.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "deal archive not configured", nil)
		return
	}
	vin := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("vin")))
	if vin == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "vin is required", nil)
		return
	}
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 20)
	rows, err := h.Store.ListByVIN(r.Context(), vin, limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list saved deals", nil)
		return
	}
	common.Data(w, http.StatusOK, rows)
}
