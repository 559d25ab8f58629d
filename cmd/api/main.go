package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-dealer/internal/app"
	"github.com/noah-isme/backend-dealer/internal/auth"
	"github.com/noah-isme/backend-dealer/internal/calculator"
	"github.com/noah-isme/backend-dealer/internal/common"
	"github.com/noah-isme/backend-dealer/internal/config"
	"github.com/noah-isme/backend-dealer/internal/deals"
	"github.com/noah-isme/backend-dealer/internal/health"
	"github.com/noah-isme/backend-dealer/internal/inventory"
	"github.com/noah-isme/backend-dealer/internal/lock"
	"github.com/noah-isme/backend-dealer/internal/obs"
	"github.com/noah-isme/backend-dealer/internal/quote"
	"github.com/noah-isme/backend-dealer/internal/ratelimit"
	"github.com/noah-isme/backend-dealer/internal/resilience"
	"github.com/noah-isme/backend-dealer/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Str("component", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	tracingEnabled := cfg.Obs.Tracing
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "dealer-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool := mustInitDatabase(startCtx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(startCtx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse asynq redis url")
	}
	taskClient := asynq.NewClient(redisOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: cfg.JWTClockSkew,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth")
	}

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "inventory",
		MinRequests:  cfg.Inventory.BreakerMinReqs,
		FailureRatio: cfg.Inventory.BreakerRatio,
		OpenFor:      cfg.Inventory.BreakerOpenFor,
		Logger:       &logger,
	})
	var inventoryClient *inventory.Client
	if cfg.Inventory.BaseURL != "" {
		inventoryClient = inventory.NewClient(inventory.Config{
			BaseURL:      cfg.Inventory.BaseURL,
			APIKey:       cfg.Inventory.APIKey,
			APIKeyHeader: cfg.Inventory.APIKeyHeader,
			Collection:   cfg.Inventory.Collection,
			HTTP: &resilience.HTTPClient{
				Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
				Breaker:     breaker,
				BaseBackoff: 100 * time.Millisecond,
				MaxAttempts: cfg.Inventory.Retries + 1,
				Jitter:      0.2,
				Timeout:     cfg.Inventory.Timeout,
				Target:      "inventory",
				Logger:      &logger,
			},
			Cache:  inventory.NewCache(redisClient, cfg.Inventory.CacheTTL),
			Logger: logger,
		})
	} else {
		logger.Warn().Msg("INVENTORY_BASE_URL not set; quotes open with a zero listed price")
	}

	serviceCfg := quote.ServiceConfig{
		Store:  quote.NewRedisStore(redisClient, cfg.Quote.TTL),
		Locker: lock.Locker{R: redisClient, RetryBackoff: 50 * time.Millisecond, MaxWait: cfg.Quote.LockWait},
		Archiver: deals.Enqueuer{
			Client:    taskClient,
			MaxRetry:  cfg.Archive.MaxRetry,
			Retention: cfg.Archive.Retention,
			Deadline:  cfg.Archive.Deadline,
		},
		Defaults: cfg.QuoteDefaults(),
		LockTTL:  cfg.Quote.LockTTL,
		Logger:   logger.With().Str("module", "quote").Logger(),
	}
	if inventoryClient != nil {
		serviceCfg.Prices = inventoryClient
	}
	quoteService := quote.NewService(serviceCfg)

	var httpMetrics *obs.HTTPMetrics
	var metricsHandler http.Handler
	if cfg.Obs.Prometheus {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
		metricsHandler = promhttp.Handler()
	}

	var globalLimit func(http.Handler) http.Handler
	if store, err := app.NewLimiterStore(redisClient); err != nil {
		logger.Error().Err(err).Msg("initialise global rate limit store")
	} else if globalLimit, err = app.GlobalLimit(store, cfg.RateLimitGlobal, logger); err != nil {
		logger.Fatal().Err(err).Msg("initialise global rate limit")
	}

	router := app.NewRouter(app.RouterConfig{
		Logger:      logger,
		HTTPMetrics: httpMetrics,
		Tracing:     tracingEnabled,
		CORSOrigins: cfg.CORSAllowedOrigins,
		BodyLimit:   cfg.BodyLimitBytes,
		SecurityHeaders: security.Headers{
			Enable:     cfg.SecurityHeaders,
			EnableHSTS: cfg.HSTS,
			NoStore:    true,
		},
		GlobalLimit: globalLimit,
		DispatchLimit: &ratelimit.Handler{
			Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:dispatch:"},
			Config: ratelimit.Config{
				Key:    ratelimit.UserVINKey,
				Window: cfg.RateLimitDispatchWindow,
				Max:    cfg.RateLimitDispatchMax,
			},
		},
		Idempotency: common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}.Middleware,
		Auth:        auth.Middleware{Verifier: verifier},
		Quotes:      quote.NewHandler(quote.HandlerConfig{Service: quoteService}),
		Vehicles:    inventory.Handler{Client: inventoryClient},
		Deals:       deals.Handler{Store: deals.NewStore(pool)},
		Calc:        calculator.Handler{},
		Health: health.Handler{
			Dependencies: []health.Dependency{
				{Name: "db", Timeout: 500 * time.Millisecond, Probe: pool.Ping},
				{Name: "redis", Timeout: 300 * time.Millisecond, Probe: func(ctx context.Context) error {
					return redisClient.Ping(ctx).Err()
				}},
			},
			Breakers: []health.BreakerReporter{breaker},
		},
		Metrics:   metricsHandler,
		Pprof:     cfg.Obs.Pprof,
		PprofUser: cfg.Obs.PprofUser,
		PprofPass: cfg.Obs.PprofPass,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{SlowThreshold: cfg.Obs.SlowQuery}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "dealer-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.Prometheus {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}
