package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/app"
	"github.com/yourorg/backtest-service/internal/config"
	"github.com/yourorg/backtest-service/internal/handler"
	"github.com/yourorg/backtest-service/internal/logging"
	"github.com/yourorg/backtest-service/internal/middleware"
)

func main() {
	// Load configuration
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize service", zap.Error(err))
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSec, cfg.RateLimit.Burst)
	stopPrune := make(chan struct{})
	if cfg.RateLimit.Enabled {
		go pruneLimiter(limiter, stopPrune)
	}

	router := setupRouter(a, limiter, cfg, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server",
			zap.String("port", cfg.Server.Port),
			zap.String("marketData", cfg.MarketData.Source),
			zap.Bool("database", cfg.Database.Enabled))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	close(stopPrune)

	// Create a deadline for server shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("Backtests did not stop before the shutdown deadline", zap.Error(err))
	}

	logger.Info("Server exited properly")
}

func pruneLimiter(limiter *middleware.RateLimiter, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			limiter.Prune(10 * time.Minute)
		case <-stop:
			return
		}
	}
}

func setupRouter(a *app.App, limiter *middleware.RateLimiter, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	// Use middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(a.Metrics))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := gin.H{"status": "healthy"}
		if a.DB != nil {
			if err := a.DB.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, status)
	})
	router.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	// API routes
	v1 := router.Group("/api/v1")
	if cfg.Auth.Enabled {
		v1.Use(middleware.EitherAuth(cfg.Auth.JWTSecret, cfg.ServiceKey, logger))
	}
	if cfg.RateLimit.Enabled {
		v1.Use(middleware.RateLimit(limiter))
	}
	handler.NewBacktestHandler(a.Service, logger).RegisterRoutes(v1)

	return router
}
