package quote

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-dealer/internal/common"
	"github.com/noah-isme/backend-dealer/internal/inventory"
	"github.com/noah-isme/backend-dealer/internal/lock"
)

// Handler exposes quote session endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Open handles GET /api/v1/quotes/{vin}.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	snap, err := h.service.Open(r.Context(), chi.URLParam(r, "vin"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, snap)
}

// Dispatch handles POST /api/v1/quotes/{vin}/commands with a command envelope.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, common.BodyError(err))
		return
	}
	cmd, err := DecodeCommand(body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	snap, err := h.service.Dispatch(r.Context(), chi.URLParam(r, "vin"), cmd)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, snap)
}

// Reset handles POST /api/v1/quotes/{vin}/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	snap, err := h.service.Reset(r.Context(), chi.URLParam(r, "vin"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, snap)
}

// Sheet handles GET /api/v1/quotes/{vin}/sheet.
func (h *Handler) Sheet(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sheet, err := h.service.Sheet(r.Context(), chi.URLParam(r, "vin"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sheet)
}

// Save handles POST /api/v1/quotes/{vin}/save.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, _ := common.UserID(r.Context())
	storeID, _ := common.StoreID(r.Context())
	receipt, err := h.service.Save(r.Context(), chi.URLParam(r, "vin"), userID, storeID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusAccepted, receipt)
}

// Commands handles GET /api/v1/quotes/commands.
func (h *Handler) Commands(w http.ResponseWriter, r *http.Request) {
	common.Data(w, http.StatusOK, Kinds())
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidVIN):
		common.JSONError(w, http.StatusBadRequest, "INVALID_VIN", "vin must be 1-17 letters or digits", nil)
	case errors.Is(err, ErrUnknownCommand):
		common.JSONError(w, http.StatusBadRequest, "UNKNOWN_COMMAND", err.Error(), map[string]any{"supported": Kinds()})
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "QUOTE_NOT_FOUND", "no quote is open for this vehicle", nil)
	case errors.Is(err, inventory.ErrVehicleNotFound):
		common.JSONError(w, http.StatusNotFound, "VEHICLE_NOT_FOUND", "vehicle not found in inventory", nil)
	case errors.Is(err, ErrArchiveUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "deal archive is not available", nil)
	case errors.Is(err, lock.ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		common.JSONError(w, http.StatusServiceUnavailable, "QUOTE_BUSY", "quote is being updated, retry shortly", nil)
	default:
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.WriteError(w, appErr)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
