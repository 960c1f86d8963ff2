package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lorrc/accounts"
	httpAdapter "github.com/lorrc/accounts/internal/adapters/primary/http"
	mw "github.com/lorrc/accounts/internal/adapters/primary/http/middleware"
	"github.com/lorrc/accounts/internal/adapters/primary/websocket"
	"github.com/lorrc/accounts/internal/auth"
	"github.com/lorrc/accounts/internal/config"
	"github.com/lorrc/accounts/internal/infrastructure/logging"
	"github.com/lorrc/accounts/internal/infrastructure/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})
	slog.SetDefault(logger)

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)
	logger.Debug("configuration loaded", "config", cfg.String())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. Initialize Metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// 4. Initialize the Account Module (identity backend + data store)
	opts := []accounts.Option{accounts.WithLogger(logger)}
	if m != nil {
		opts = append(opts, accounts.WithMetrics(m))
	}
	mod, err := accounts.Setup(ctx, accounts.Config{
		DataStoreURL:    cfg.DataStore.URL,
		UsersCollection: cfg.DataStore.UsersCollection,
		AutoMigrate:     cfg.DataStore.AutoMigrate,
		IdentityBackend: cfg.Identity.Backend,
		FirebaseAPIKey:  cfg.Identity.FirebaseAPIKey,
		IdentityURL:     cfg.Identity.IdentityURL,
		TokenURL:        cfg.Identity.TokenURL,
		HTTPTimeout:     cfg.Identity.HTTPTimeout,
		Verification: accounts.VerificationConfig{
			PollInterval: cfg.Verification.PollInterval,
			MaxAttempts:  cfg.Verification.MaxAttempts,
			Timeout:      cfg.Verification.Timeout,
		},
	}, opts...)
	if err != nil {
		logger.Error("failed to set up account module", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mod.Close(); err != nil {
			logger.Error("failed to close data store", "error", err)
		}
	}()

	if err := mod.Ping(ctx); err != nil {
		logger.Error("data store ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("data store connection established")

	// 5. Initialize Sessions & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	sessions := httpAdapter.NewSessionRegistry(mod, tokenManager.TTL(), m, logger)
	sessionsDone := make(chan struct{})
	go func() {
		sessions.Run(ctx, time.Minute)
		close(sessionsDone)
	}()

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// 6. Initialize Rate Limiters
	var generalRateLimiter, authRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		generalRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
		defer generalRateLimiter.Close()

		authRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.AuthRPS,
			BurstSize:         cfg.RateLimit.AuthBurst,
			CleanupInterval:   time.Minute,
			TTL:               5 * time.Minute,
		})
		defer authRateLimiter.Close()
	}

	// One password reset mail per address per minute.
	resetLimiter := mw.NewRateLimitByKey(1.0/60, 1)
	defer resetLimiter.Close()

	// 7. Dependency Injection (Wiring the Hexagon)
	errorHandler := httpAdapter.NewErrorHandler(logger)

	authHandler := httpAdapter.NewAuthHandler(sessions, tokenManager, resetLimiter, errorHandler, logger)
	accountHandler := httpAdapter.NewAccountHandler(sessions, errorHandler, logger)
	verificationHandler := httpAdapter.NewVerificationHandler(sessions, hub, tokenManager, httpAdapter.WebSocketConfig{
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		Timeouts: websocket.Timeouts{
			PingInterval: cfg.WebSocket.PingInterval,
			PongWait:     cfg.WebSocket.PongWait,
		},
		IsDevelopment: cfg.IsDevelopment(),
	}, logger)
	healthHandler := httpAdapter.NewHealthHandler(mod, cfg.App.Version)

	// 8. Setup Router
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		Auth:               authHandler,
		Account:            accountHandler,
		Verification:       verificationHandler,
		Health:             healthHandler,
		Tokens:             tokenManager,
		Logger:             logger,
		Metrics:            m,
		MetricsPath:        cfg.Metrics.Path,
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		CORSMaxAge:         cfg.CORS.MaxAge,
		RateLimiter:        generalRateLimiter,
		AuthRateLimiter:    authRateLimiter,
	})

	// 9. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		exitCode = 1
	}

	// Stops the hub and signs out every open session.
	stop()
	<-sessionsDone

	logger.Info("server shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
