package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-dealer/internal/common"
	"github.com/noah-isme/backend-dealer/internal/obs"
	"github.com/noah-isme/backend-dealer/internal/resilience"
)

// ErrVehicleNotFound is returned when the search index has no document for a VIN.
var ErrVehicleNotFound = errors.New("inventory: vehicle not found")

// DefaultAPIKeyHeader is the header the search index reads its API key from.
const DefaultAPIKeyHeader = "X-TYPESENSE-API-KEY"

// Vehicle is an inventory unit as listed on the lot.
type Vehicle struct {
	VIN       string          `json:"vin"`
	Stock     string          `json:"stock,omitempty"`
	Condition string          `json:"condition,omitempty"`
	Year      int             `json:"year,omitempty"`
	Make      string          `json:"make,omitempty"`
	Model     string          `json:"model,omitempty"`
	Trim      string          `json:"trim,omitempty"`
	Color     string          `json:"color,omitempty"`
	Miles     int             `json:"miles,omitempty"`
	MSRP      decimal.Decimal `json:"msrp"`
	OurPrice  decimal.Decimal `json:"ourPrice"`
}

// ListedPrice is the advertised price: our_price when set, else MSRP.
func (v Vehicle) ListedPrice() decimal.Decimal {
	if v.OurPrice.IsPositive() {
		return v.OurPrice
	}
	return v.MSRP
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	Collection   string
	HTTP         *resilience.HTTPClient
	Cache        *Cache
	Logger       zerolog.Logger
}

// Client looks vehicles up in the inventory search index.
type Client struct {
	baseURL    string
	apiKey     string
	header     string
	collection string
	http       *resilience.HTTPClient
	cache      *Cache
	logger     zerolog.Logger
}

// NewClient constructs a Client. Without an HTTP wrapper the client uses an
// otelhttp-instrumented transport with a single attempt.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &resilience.HTTPClient{
			Client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport), Timeout: 5 * time.Second},
			Target:  "inventory",
			Timeout: 5 * time.Second,
		}
	}
	header := cfg.APIKeyHeader
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "vehicles"
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		header:     header,
		collection: collection,
		http:       httpClient,
		cache:      cfg.Cache,
		logger:     cfg.Logger,
	}
}

// Vehicle returns the inventory unit with the given VIN.
func (c *Client) Vehicle(ctx context.Context, vin string) (Vehicle, error) {
	vin = strings.ToUpper(strings.TrimSpace(vin))
	if vin == "" {
		return Vehicle{}, ErrVehicleNotFound
	}
	if cached, ok, err := c.cache.Get(ctx, vin); err != nil {
		c.logger.Warn().Err(err).Str("vin", vin).Msg("inventory cache read failed")
	} else if ok {
		count("cache_hit")
		return cached, nil
	}

	v, err := c.search(ctx, vin)
	switch {
	case errors.Is(err, ErrVehicleNotFound):
		count("not_found")
		return Vehicle{}, err
	case err != nil:
		count("error")
		return Vehicle{}, err
	}
	count("fetched")
	if err := c.cache.Set(ctx, v); err != nil {
		c.logger.Warn().Err(err).Str("vin", vin).Msg("inventory cache write failed")
	}
	return v, nil
}

// ListedPrice returns the advertised price of the vehicle with the given VIN.
func (c *Client) ListedPrice(ctx context.Context, vin string) (decimal.Decimal, error) {
	v, err := c.Vehicle(ctx, vin)
	if err != nil {
		return decimal.Zero, err
	}
	return v.ListedPrice(), nil
}

// Forget drops any cached copy of the vehicle so the next lookup hits the index.
func (c *Client) Forget(ctx context.Context, vin string) error {
	return c.cache.Invalidate(ctx, strings.ToUpper(strings.TrimSpace(vin)))
}

type searchResponse struct {
	Found int `json:"found"`
	Hits  []struct {
		Document document `json:"document"`
	} `json:"hits"`
}

// document mirrors an indexed vehicle. Feeds are inconsistent about numbers
// versus strings, so every scalar is read loosely.
type document struct {
	VIN      looseString    `json:"vin"`
	Stock    looseString    `json:"stock"`
	Type     looseString    `json:"type"`
	Year     common.Decimal `json:"year"`
	Make     looseString    `json:"make"`
	Model    looseString    `json:"model"`
	Trim     looseString    `json:"trim"`
	Color    looseString    `json:"ext_color"`
	Miles    common.Decimal `json:"miles"`
	MSRP     common.Decimal `json:"msrp"`
	OurPrice common.Decimal `json:"our_price"`
}

func (d document) vehicle() Vehicle {
	return Vehicle{
		VIN:       strings.ToUpper(strings.TrimSpace(string(d.VIN))),
		Stock:     string(d.Stock),
		Condition: string(d.Type),
		Year:      int(d.Year.IntPart()),
		Make:      string(d.Make),
		Model:     string(d.Model),
		Trim:      string(d.Trim),
		Color:     string(d.Color),
		Miles:     int(d.Miles.IntPart()),
		MSRP:      d.MSRP.Decimal,
		OurPrice:  d.OurPrice.Decimal,
	}
}

func (c *Client) search(ctx context.Context, vin string) (Vehicle, error) {
	if c.baseURL == "" {
		return Vehicle{}, errors.New("inventory: base url not configured")
	}
	q := url.Values{}
	q.Set("q", vin)
	q.Set("query_by", "vin")
	endpoint := fmt.Sprintf("%s/collections/%s/documents/search?%s", c.baseURL, url.PathEscape(c.collection), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Vehicle{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.header, c.apiKey)
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return Vehicle{}, fmt.Errorf("inventory: search: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Vehicle{}, fmt.Errorf("inventory: read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return Vehicle{}, ErrVehicleNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Vehicle{}, fmt.Errorf("inventory: search returned %d", resp.StatusCode)
	}
	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Vehicle{}, fmt.Errorf("inventory: decode response: %w", err)
	}
	for _, hit := range parsed.Hits {
		v := hit.Document.vehicle()
		if v.VIN == vin {
			return v, nil
		}
	}
	return Vehicle{}, ErrVehicleNotFound
}

// looseString accepts a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = looseString(strings.TrimSpace(str))
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err == nil {
		*s = looseString(data)
		return nil
	}
	*s = ""
	return nil
}

func count(result string) {
	if obs.InventoryLookupTotal != nil {
		obs.InventoryLookupTotal.WithLabelValues(result).Inc()
	}
}
