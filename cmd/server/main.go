package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appsession "github.com/enercompare/backend/internal/application/session"
	appstats "github.com/enercompare/backend/internal/application/stats"
	apptracking "github.com/enercompare/backend/internal/application/tracking"
	"github.com/enercompare/backend/internal/infrastructure/auth"
	"github.com/enercompare/backend/internal/infrastructure/cache"
	"github.com/enercompare/backend/internal/infrastructure/config"
	"github.com/enercompare/backend/internal/infrastructure/kv"
	"github.com/enercompare/backend/internal/infrastructure/logger"
	"github.com/enercompare/backend/internal/infrastructure/upstream"
	"github.com/enercompare/backend/internal/interfaces/http/handler"
	"github.com/enercompare/backend/internal/interfaces/http/middleware"
	"github.com/enercompare/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting enercompare backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Shared KV store
	store, err := kv.NewRedisStore(cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing Redis connection", zap.Error(err))
		}
	}()
	log.Info("Redis connected successfully")

	// Token signing
	tokens, err := auth.NewTokenService(cfg.Signing)
	if err != nil {
		log.Fatal("Failed to initialize token service", zap.Error(err))
	}

	// Application services
	sessionService := appsession.NewService(store, tokens, cfg.Session, log)
	clickService := apptracking.NewClickService(store, cfg.Click.QueueSize, log)
	defer clickService.Close()
	conversionService := apptracking.NewConversionService(store, cfg.Webhook.Secret, log)

	// Upstream stats: outbound limiter, client, tiered cache
	limiter := upstream.NewLimiter(cfg.Upstream.MaxRequests, cfg.Upstream.Window, cfg.Upstream.DefaultBackoff)
	client, err := upstream.NewClient(cfg.Upstream, limiter, log)
	if err != nil {
		log.Fatal("Failed to initialize upstream client", zap.Error(err))
	}
	fetchCache := cache.NewFetchCache(
		cache.NewRedisCache(store, cfg.Cache.TTL, cfg.Cache.StaleWindow),
		cache.NewMemoryCache(cfg.Cache.LocalSize, cfg.Cache.LocalTTL, cfg.Cache.StaleWindow),
		cache.WithFetchLogger(log),
		cache.WithRetryBase(cfg.Upstream.RetryBase),
		cache.WithMaxAttempts(cfg.Upstream.MaxAttempts),
	)
	statsService := appstats.NewService(fetchCache, client)

	// HTTP engine and middleware
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log, "/health", "/ready"),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.CORSWithConfig(corsCfg),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)
	if cfg.HTTP.RateLimitEnabled {
		engine.Use(middleware.RateLimit(
			middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)))
	}

	// Routes
	router.NewRouter(engine).
		Register(handler.NewAuthHandler(sessionService, log)).
		Register(handler.NewTrackHandler(clickService, conversionService, log)).
		Register(handler.NewStatsHandler(statsService, cfg.Cache, log)).
		Setup()
	handler.NewHealthHandler(store).Register(engine)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
