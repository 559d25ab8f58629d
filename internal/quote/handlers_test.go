package quote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-dealer/internal/common"
	"github.com/noah-isme/backend-dealer/internal/inventory"
)

func newTestRouter(prices PriceLookup, archiver Archiver) http.Handler {
	svc := NewService(ServiceConfig{Prices: prices, Archiver: archiver, Logger: zerolog.Nop()})
	h := NewHandler(HandlerConfig{Service: svc})
	r := chi.NewRouter()
	r.Get("/api/v1/quotes/commands", h.Commands)
	r.Get("/api/v1/quotes/{vin}", h.Open)
	r.Post("/api/v1/quotes/{vin}/commands", h.Dispatch)
	r.Post("/api/v1/quotes/{vin}/reset", h.Reset)
	r.Get("/api/v1/quotes/{vin}/sheet", h.Sheet)
	r.Post("/api/v1/quotes/{vin}/save", h.Save)
	return r
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error common.ErrorBody `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(common.WithUserID(req.Context(), "user-7"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return rr.Code, env
}

func TestHandlerDispatchFlow(t *testing.T) {
	router := newTestRouter(&priceStub{price: decimal.NewFromInt(38800)}, &archiverStub{})

	code, env := do(t, router, http.MethodGet, "/api/v1/quotes/"+vin, "")
	require.Equal(t, http.StatusOK, code)

	code, env = do(t, router, http.MethodPost, "/api/v1/quotes/"+vin+"/commands",
		`{"type":"set_selling_price","payload":{"value":"37000"}}`)
	require.Equal(t, http.StatusOK, code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	require.Equal(t, "37000", snap.State.SellingPrice.String())
	require.True(t, snap.State.Discount.IsZero())
	require.Equal(t, OutcomeApplied, snap.Outcome)

	code, env = do(t, router, http.MethodGet, "/api/v1/quotes/"+vin+"/sheet", "")
	require.Equal(t, http.StatusOK, code)
	var sheet Sheet
	require.NoError(t, json.Unmarshal(env.Data, &sheet))
	require.Equal(t, "37000.00", sheet.Pricing.Total.StringFixed(2))

	code, env = do(t, router, http.MethodPost, "/api/v1/quotes/"+vin+"/save", "")
	require.Equal(t, http.StatusAccepted, code)
	var receipt SaveReceipt
	require.NoError(t, json.Unmarshal(env.Data, &receipt))
	require.NotEmpty(t, receipt.DealID)

	code, env = do(t, router, http.MethodPost, "/api/v1/quotes/"+vin+"/reset", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	require.Equal(t, "38800", snap.State.SellingPrice.String())
}

func TestHandlerErrors(t *testing.T) {
	router := newTestRouter(&priceStub{err: inventory.ErrVehicleNotFound}, nil)

	code, env := do(t, router, http.MethodGet, "/api/v1/quotes/"+vin, "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "VEHICLE_NOT_FOUND", env.Error.Code)

	code, env = do(t, router, http.MethodGet, "/api/v1/quotes/not-a-vin", "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "INVALID_VIN", env.Error.Code)

	code, env = do(t, router, http.MethodPost, "/api/v1/quotes/"+vin+"/commands", `{"type":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "UNKNOWN_COMMAND", env.Error.Code)

	code, env = do(t, router, http.MethodPost, "/api/v1/quotes/"+vin+"/commands", `{"type":"delete_term","payload":{}}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	code, env = do(t, router, http.MethodGet, "/api/v1/quotes/"+vin+"/sheet", "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "QUOTE_NOT_FOUND", env.Error.Code)

	code, env = do(t, router, http.MethodPost, "/api/v1/quotes/"+vin+"/save", "")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "ARCHIVE_UNAVAILABLE", env.Error.Code)
}

func TestHandlerCommandsList(t *testing.T) {
	router := newTestRouter(nil, nil)
	code, env := do(t, router, http.MethodGet, "/api/v1/quotes/commands", "")
	require.Equal(t, http.StatusOK, code)
	var kinds []string
	require.NoError(t, json.Unmarshal(env.Data, &kinds))
	require.Contains(t, kinds, "reset")
}
