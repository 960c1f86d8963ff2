package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	mw "github.com/lorrc/accounts/internal/adapters/primary/http/middleware"
	"github.com/lorrc/accounts/internal/auth"
	"github.com/lorrc/accounts/internal/infrastructure/metrics"
)

// RouterConfig carries the handlers and cross-cutting pieces of the API.
// Nil rate limiters and nil Metrics disable those features.
type RouterConfig struct {
	Auth         *AuthHandler
	Account      *AccountHandler
	Verification *VerificationHandler
	Health       *HealthHandler
	Tokens       *auth.TokenManager
	Logger       *slog.Logger

	Metrics     *metrics.Metrics
	MetricsPath string

	CORSAllowedOrigins []string
	CORSMaxAge         int

	RateLimiter     *mw.RateLimiter
	AuthRateLimiter *mw.RateLimiter
}

// NewRouter builds the HTTP API:
//
//	/health, /health/live, /health/ready
//	/api/v1/auth/{register,login,logout,password-reset}
//	/api/v1/account/{session,verification,profile}
//	/api/v1/account/verification/ws
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(cfg.Logger))
	r.Use(mw.RecoveryLogger(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(mw.Metrics(cfg.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           cfg.CORSMaxAge,
	}))

	// Probes stay outside rate limiting.
	cfg.Health.RegisterRoutes(r)
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		r.Group(func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter.Middleware)
			}
			r.Route("/auth", cfg.Auth.RegisterRoutes)
		})

		r.Route("/account", func(r chi.Router) {
			// The WebSocket authenticates inside the handler.
			r.Get("/verification/ws", cfg.Verification.ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(mw.SessionAuth(cfg.Tokens))
				cfg.Account.RegisterRoutes(r)
			})
		})
	})

	return r
}
