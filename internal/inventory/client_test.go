package inventory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-dealer/internal/resilience"
)

const sampleVIN = "1HGCM82633A004352"

func searchServer(t *testing.T, body string, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/collections/vehicles/documents/search" ||
			r.URL.Query().Get("query_by") != "vin" ||
			r.Header.Get(DefaultAPIKeyHeader) != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(t *testing.T, srv *httptest.Server, cache *Cache) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "secret",
		HTTP:    &resilience.HTTPClient{Client: srv.Client(), BaseBackoff: time.Millisecond, MaxAttempts: 2, Target: "inventory"},
		Cache:   cache,
		Logger:  zerolog.Nop(),
	})
}

func TestVehicleParsesLooseDocument(t *testing.T) {
	srv, _ := searchServer(t, `{"found":2,"hits":[
		{"document":{"vin":"1HGCM82633A004399","msrp":"1"}},
		{"document":{"vin":"1hgcm82633a004352","stock":12345,"year":"2024","make":"Honda","model":"Accord","msrp":"$38,800.00","our_price":"","miles":"12"}}
	]}`, http.StatusOK)

	v, err := newTestClient(t, srv, nil).Vehicle(context.Background(), sampleVIN)
	require.NoError(t, err)
	require.Equal(t, sampleVIN, v.VIN)
	require.Equal(t, "12345", v.Stock)
	require.Equal(t, 2024, v.Year)
	require.Equal(t, 12, v.Miles)
	require.Equal(t, "38800", v.MSRP.String())
	require.True(t, v.OurPrice.IsZero())
	require.Equal(t, "38800", v.ListedPrice().String())
}

func TestListedPricePrefersOurPrice(t *testing.T) {
	srv, _ := searchServer(t, `{"hits":[{"document":{"vin":"`+sampleVIN+`","msrp":40000,"our_price":"37,995"}}]}`, http.StatusOK)

	price, err := newTestClient(t, srv, nil).ListedPrice(context.Background(), sampleVIN)
	require.NoError(t, err)
	require.Equal(t, "37995", price.String())
}

func TestVehicleNotFound(t *testing.T) {
	srv, _ := searchServer(t, `{"found":0,"hits":[]}`, http.StatusOK)
	_, err := newTestClient(t, srv, nil).Vehicle(context.Background(), sampleVIN)
	require.ErrorIs(t, err, ErrVehicleNotFound)
}

func TestVehicleUpstreamFailure(t *testing.T) {
	srv, calls := searchServer(t, `oops`, http.StatusServiceUnavailable)
	_, err := newTestClient(t, srv, nil).Vehicle(context.Background(), sampleVIN)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrVehicleNotFound)
	require.EqualValues(t, 2, calls.Load())
}

func TestVehicleUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	srv, calls := searchServer(t, `{"hits":[{"document":{"vin":"`+sampleVIN+`","msrp":"38800"}}]}`, http.StatusOK)
	client := newTestClient(t, srv, NewCache(rdb, time.Minute))

	for i := 0; i < 3; i++ {
		v, err := client.Vehicle(context.Background(), sampleVIN)
		require.NoError(t, err)
		require.Equal(t, "38800", v.MSRP.String())
	}
	require.EqualValues(t, 1, calls.Load())
	require.True(t, mr.Exists("inventory:vehicle:"+sampleVIN))

	require.NoError(t, client.Forget(context.Background(), strings.ToLower(sampleVIN)))
	require.False(t, mr.Exists("inventory:vehicle:"+sampleVIN))
	_, err := client.Vehicle(context.Background(), sampleVIN)
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestHandlerVehicle(t *testing.T) {
	srv, _ := searchServer(t, `{"hits":[{"document":{"vin":"`+sampleVIN+`","msrp":"38800"}}]}`, http.StatusOK)
	h := Handler{Client: newTestClient(t, srv, nil)}

	router := chi.NewRouter()
	router.Get("/api/v1/vehicles/{vin}", h.Vehicle)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/vehicles/"+sampleVIN, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"listedPrice":"38800"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/vehicles/UNKNOWN", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
