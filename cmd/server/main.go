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

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/btrank/internal/cache"
	"github.com/ZanzyTHEbar/btrank/internal/config"
	"github.com/ZanzyTHEbar/btrank/internal/database"
	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
	"github.com/ZanzyTHEbar/btrank/internal/monitoring"
	"github.com/ZanzyTHEbar/btrank/internal/ratelimit"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := monitoring.NewLoggerTo(os.Stdout, monitoring.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	slog.SetDefault(appLogger.Logger)

	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer apperrors.SafeClose(db, "database")

	ctx := context.Background()

	redisClient, err := ratelimit.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Warn("Redis unavailable, continuing with in-memory rate limiting", "error", err)
	}
	defer apperrors.SafeClose(redisClient, "redis")

	appMetrics := monitoring.NewMetrics()

	limiter := ratelimit.NewRateLimiter(redisClient, cfg.RateLimitConfig(), appMetrics)
	defer limiter.Close()

	fitCache := cache.NewCache(cfg.CacheTTL, 5*time.Minute)
	defer fitCache.Close()

	srv := newServer(cfg, database.NewRepository(db), db, redisClient, fitCache, limiter, appMetrics, appLogger)

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.SystemLogger("startup", "listening on "+cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}
