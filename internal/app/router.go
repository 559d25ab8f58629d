package app

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dealer/internal/auth"
	"github.com/noah-isme/backend-dealer/internal/calculator"
	"github.com/noah-isme/backend-dealer/internal/common"
	"github.com/noah-isme/backend-dealer/internal/deals"
	"github.com/noah-isme/backend-dealer/internal/health"
	"github.com/noah-isme/backend-dealer/internal/inventory"
	"github.com/noah-isme/backend-dealer/internal/obs"
	"github.com/noah-isme/backend-dealer/internal/quote"
	"github.com/noah-isme/backend-dealer/internal/ratelimit"
	"github.com/noah-isme/backend-dealer/internal/security"
)

// RouterConfig carries everything the HTTP surface is assembled from.
// Nil middlewares are skipped.
type RouterConfig struct {
	Logger          zerolog.Logger
	HTTPMetrics     *obs.HTTPMetrics
	Tracing         bool
	CORSOrigins     []string
	BodyLimit       int64
	SecurityHeaders security.Headers
	GlobalLimit     func(http.Handler) http.Handler
	DispatchLimit   *ratelimit.Handler
	Idempotency     func(http.Handler) http.Handler
	Auth            auth.Middleware

	Quotes   *quote.Handler
	Vehicles inventory.Handler
	Deals    deals.Handler
	Calc     calculator.Handler
	Health   health.Handler

	Metrics   http.Handler
	Pprof     bool
	PprofUser string
	PprofPass string
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if cfg.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: cfg.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: cfg.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(cfg.SecurityHeaders.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimit}.Middleware)

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	if cfg.Pprof {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}
	r.Get("/health/live", cfg.Health.Live)
	r.Get("/health/ready", cfg.Health.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		if cfg.GlobalLimit != nil {
			v.Use(cfg.GlobalLimit)
		}

		v.Route("/calc", func(c chi.Router) {
			c.Post("/payment", cfg.Calc.Payment)
			c.Post("/matrix", cfg.Calc.Matrix)
			c.Post("/total", cfg.Calc.Total)
		})

		v.Group(func(p chi.Router) {
			p.Use(cfg.Auth.RequireAuth)

			p.Get("/vehicles/{vin}", cfg.Vehicles.Vehicle)
			p.Get("/deals", cfg.Deals.List)

			p.Get("/quotes/commands", cfg.Quotes.Commands)
			p.Route("/quotes/{vin}", func(q chi.Router) {
				q.Get("/", cfg.Quotes.Open)
				q.Get("/sheet", cfg.Quotes.Sheet)
				q.Post("/reset", cfg.Quotes.Reset)
				q.With(optional(dispatchLimit(cfg.DispatchLimit))).Post("/commands", cfg.Quotes.Dispatch)
				q.With(optional(cfg.Idempotency)).Post("/save", cfg.Quotes.Save)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})
	return r
}

func dispatchLimit(h *ratelimit.Handler) func(http.Handler) http.Handler {
	if h == nil {
		return nil
	}
	return h.Middleware
}

func optional(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
