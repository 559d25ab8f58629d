package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-dealer/internal/amortization"
	"github.com/noah-isme/backend-dealer/internal/deal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	JWTClockSkew time.Duration

	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	SecurityHeaders    bool
	HSTS               bool

	RateLimitGlobal         string
	RateLimitDispatchMax    int
	RateLimitDispatchWindow time.Duration
	IdempotencyTTL          time.Duration

	Quote     QuoteConfig
	Inventory InventoryConfig
	Archive   ArchiveConfig
	Obs       ObsConfig
}

// QuoteConfig controls quote lifetime, locking and the defaults a new quote is seeded with.
type QuoteConfig struct {
	TTL                time.Duration
	LockTTL            time.Duration
	LockWait           time.Duration
	TaxRate            decimal.Decimal
	DaysToFirstPayment int
	TermMonths         []int
	SelectedTerms      int
	DownPayments       []decimal.Decimal
}

// InventoryConfig points at the vehicle search index.
type InventoryConfig struct {
	BaseURL        string
	APIKey         string
	APIKeyHeader   string
	Collection     string
	CacheTTL       time.Duration
	Timeout        time.Duration
	Retries        int
	BreakerMinReqs int
	BreakerRatio   float64
	BreakerOpenFor time.Duration
}

// ArchiveConfig tunes the saved deal worker.
type ArchiveConfig struct {
	Concurrency int
	MaxRetry    int
	Retention   time.Duration
	Deadline    time.Duration
}

// ObsConfig toggles logging, metrics and tracing.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsBuckets   string
	Prometheus       bool
	Tracing          bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	Pprof            bool
	PprofUser        string
	PprofPass        string
	SlowQuery        time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	terms, err := parseInts(k.String("QUOTE_DEFAULT_TERMS"), "36,48,60,72")
	if err != nil {
		return nil, fmt.Errorf("QUOTE_DEFAULT_TERMS: %w", err)
	}
	downs, err := parseDecimals(k.String("QUOTE_DEFAULT_DOWN_PAYMENTS"), "0,1000,2500")
	if err != nil {
		return nil, fmt.Errorf("QUOTE_DEFAULT_DOWN_PAYMENTS: %w", err)
	}
	taxRate, err := decimal.NewFromString(valueOrDefault(k.String("QUOTE_DEFAULT_TAX_RATE"), "0"))
	if err != nil {
		return nil, fmt.Errorf("QUOTE_DEFAULT_TAX_RATE: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),

		JWTSecret:    k.String("JWT_SECRET"),
		JWTIssuer:    strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:  strings.TrimSpace(k.String("JWT_AUDIENCE")),
		JWTClockSkew: parseDuration(k.String("JWT_CLOCK_SKEW"), "30s"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 64<<10)),
		SecurityHeaders:    parseBool(k.String("SECURE_HEADERS"), true),
		HSTS:               parseBool(k.String("SECURE_HSTS"), false),

		RateLimitGlobal:         valueOrDefault(k.String("RATE_LIMIT_GLOBAL"), "600-M"),
		RateLimitDispatchMax:    parseInt(k.String("RATE_LIMIT_DISPATCH_MAX"), 120),
		RateLimitDispatchWindow: parseDuration(k.String("RATE_LIMIT_DISPATCH_WINDOW"), "1m"),
		IdempotencyTTL:          parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		Quote: QuoteConfig{
			TTL:                parseDuration(k.String("QUOTE_TTL"), "720h"),
			LockTTL:            parseDuration(k.String("QUOTE_LOCK_TTL"), "5s"),
			LockWait:           parseDuration(k.String("QUOTE_LOCK_WAIT"), "2s"),
			TaxRate:            taxRate,
			DaysToFirstPayment: max(parseInt(k.String("QUOTE_DEFAULT_DAYS_TO_FIRST_PAYMENT"), amortization.DefaultDaysToFirstPayment), 0),
			TermMonths:         terms,
			SelectedTerms:      parseInt(k.String("QUOTE_DEFAULT_SELECTED_TERMS"), 3),
			DownPayments:       downs,
		},
		Inventory: InventoryConfig{
			BaseURL:        strings.TrimRight(strings.TrimSpace(k.String("INVENTORY_BASE_URL")), "/"),
			APIKey:         k.String("INVENTORY_API_KEY"),
			APIKeyHeader:   valueOrDefault(k.String("INVENTORY_API_KEY_HEADER"), "X-TYPESENSE-API-KEY"),
			Collection:     valueOrDefault(k.String("INVENTORY_COLLECTION"), "vehicles"),
			CacheTTL:       parseDuration(k.String("INVENTORY_CACHE_TTL"), "10m"),
			Timeout:        parseDuration(k.String("INVENTORY_TIMEOUT"), "3s"),
			Retries:        parseInt(k.String("INVENTORY_RETRIES"), 2),
			BreakerMinReqs: parseInt(k.String("INVENTORY_BREAKER_MIN_REQUESTS"), 5),
			BreakerRatio:   parseFloat(k.String("INVENTORY_BREAKER_FAILURE_RATIO"), 0.5),
			BreakerOpenFor: parseDuration(k.String("INVENTORY_BREAKER_OPEN_FOR"), "30s"),
		},
		Archive: ArchiveConfig{
			Concurrency: parseInt(k.String("ARCHIVE_CONCURRENCY"), 5),
			MaxRetry:    parseInt(k.String("ARCHIVE_MAX_RETRY"), 10),
			Retention:   parseDuration(k.String("ARCHIVE_RETENTION"), "24h"),
			Deadline:    parseDuration(k.String("ARCHIVE_TIMEOUT"), "30s"),
		},
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "dealer"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			Prometheus:       parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			Tracing:          parseBool(k.String("OBS_ENABLE_TRACING"), true),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			Pprof:            parseBool(k.String("OBS_ENABLE_PPROF"), false),
			PprofUser:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
			SlowQuery:        parseDuration(k.String("OBS_SLOW_QUERY"), "200ms"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if len(cfg.Quote.TermMonths) > deal.MaxLoanTerms {
		return nil, fmt.Errorf("QUOTE_DEFAULT_TERMS: at most %d terms", deal.MaxLoanTerms)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// QuoteDefaults converts the quote settings into the seed for new quotes.
func (c *Config) QuoteDefaults() deal.Defaults {
	return deal.Defaults{
		SalesTaxRate:       c.Quote.TaxRate,
		DaysToFirstPayment: c.Quote.DaysToFirstPayment,
		TermMonths:         append([]int(nil), c.Quote.TermMonths...),
		SelectedTerms:      c.Quote.SelectedTerms,
		DownPayments:       append([]decimal.Decimal(nil), c.Quote.DownPayments...),
	}
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// parseInts reads a CSV of positive month counts.
func parseInts(value, fallback string) ([]int, error) {
	parts := splitAndTrim(valueOrDefault(value, fallback))
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid term %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseDecimals(value, fallback string) ([]decimal.Decimal, error) {
	parts := splitAndTrim(valueOrDefault(value, fallback))
	out := make([]decimal.Decimal, 0, len(parts))
	for _, p := range parts {
		v, err := decimal.NewFromString(p)
		if err != nil || v.IsNegative() {
			return nil, fmt.Errorf("invalid amount %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
