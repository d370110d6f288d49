package api

import (
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alecgard/gabelle/internal/auth"
	"github.com/alecgard/gabelle/internal/cache"
	"github.com/alecgard/gabelle/internal/metrics"
	"github.com/alecgard/gabelle/internal/ratelimit"
)

// Users combines the user store capabilities the router depends on.
type Users interface {
	UserStore
	auth.UserLookup
	auth.APIKeyLookup
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Users      Users
	UsageStore UsageReader
	Recorder   UsageRecorder
	Sessions   *scs.SessionManager
	Limiter    *ratelimit.Limiter
	Cache      *cache.Cache
	Metrics    *metrics.Metrics

	// AllowedOrigins lists origins permitted for cross-origin requests.
	AllowedOrigins []string

	// Ping reports database reachability for the health endpoint. May be nil.
	Ping func(ctx context.Context) error
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(deps.Sessions.LoadAndSave)
	r.Use(slogRequestLogger)
	r.Use(metricsMiddleware(deps.Metrics))

	// Handlers.
	authH := newAuthHandler(deps.Users, deps.Sessions, deps.Metrics)
	analytics := newAnalyticsHandler(deps.UsageStore)
	ingest := newUsageHandler(deps.Recorder, deps.Cache)

	// Health check.
	r.Get("/health", healthHandler(deps.Ping))

	// Live metrics summary.
	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler())
	}

	// Public auth routes, rate limited per client IP.
	r.Group(func(pr chi.Router) {
		if deps.Limiter != nil {
			onReject := func() {}
			if deps.Metrics != nil {
				onReject = func() { deps.Metrics.IncRateLimitRejection("auth") }
			}
			pr.Use(ratelimit.Middleware(deps.Limiter, onReject))
		}
		pr.Post("/api/auth/register", authH.Register)
		pr.Post("/api/auth/login", authH.Login)
	})

	// Session-authenticated routes.
	r.Group(func(sr chi.Router) {
		sr.Use(auth.RequireSession(deps.Sessions, deps.Users))

		sr.Post("/api/auth/logout", authH.Logout)
		sr.Get("/api/me", authH.Me)
		sr.Post("/api/me/apikey", authH.RotateAPIKey)
		sr.Put("/api/me/provider-key", authH.SetProviderKey)

		sr.Group(func(ar chi.Router) {
			if deps.Cache != nil {
				var observers []func(hit bool)
				if deps.Metrics != nil {
					observers = append(observers, deps.Metrics.ObserveCacheLookup)
				}
				ar.Use(cache.Middleware(deps.Cache, observers...))
			}
			ar.Get("/api/analytics/usage", analytics.GetUsage)
			ar.Get("/api/analytics/summary", analytics.GetSummary)
		})
	})

	// API-key authenticated ingest route.
	r.Group(func(kr chi.Router) {
		kr.Use(auth.RequireAPIKey(deps.Users))
		kr.Post("/api/usage", ingest.Ingest)
	})

	return r
}

// healthHandler reports service and database health.
func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":   "degraded",
					"database": "unreachable",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
