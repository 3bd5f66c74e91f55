// Package main はAPIサーバーのエントリーポイントです。
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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/userauth/internal/auth"
	"github.com/yourusername/userauth/internal/config"
	"github.com/yourusername/userauth/internal/credential"
	"github.com/yourusername/userauth/internal/logging"
	"github.com/yourusername/userauth/internal/metrics"
	"github.com/yourusername/userauth/internal/token"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)
	if cfg.EphemeralTokenSecret {
		logger.Warn("TOKEN_SECRET is not set; using a random per-process secret (tokens will not survive restarts)")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	store, err := setupStore(storeCtx, cfg)
	cancel()
	if err != nil {
		return err
	}
	logger.Info("user store ready", "driver", cfg.StoreDriver)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("failed to close user store", "error", err)
		}
	}()

	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	hasher := credential.NewBcryptHasher(cfg.HashCost, cfg.HashConcurrency).WithObserver(m.ObserveHash)
	issuer := token.NewIssuer([]byte(cfg.TokenSecret), cfg.TokenTTL)

	scheduler := &lazyScheduler{}
	authManager, err := auth.NewManager(auth.Options{
		Store:     store,
		Hasher:    hasher,
		Issuer:    issuer,
		Scheduler: scheduler,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	jobManager, err := setupJobs(cfg, authManager, logger)
	if err != nil {
		return err
	}
	if jobManager != nil {
		scheduler.set(jobManager)
		jobManager.StartWorkers()
		defer func() {
			if err := jobManager.Shutdown(context.Background()); err != nil {
				logger.Warn("failed to shut down job manager", "error", err)
			}
		}()
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger(logger))

	// CORSミドルウェアの設定（クッキーでトークンを送るため AllowCredentials を有効にする）
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		logging.RequestIDHeader,
	}
	corsConfig.ExposeHeaders = []string{logging.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, authManager, auth.CookieOptions{
		Secure: cfg.CookieSecure || cfg.GinMode == gin.ReleaseMode,
		MaxAge: cfg.TokenTTL,
	}, metrics.Handler(registry))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server", "addr", srv.Addr, "mode", cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "userauth-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, authManager *auth.Manager, cookie auth.CookieOptions, metricsHandler http.Handler) {
	router.GET("/health", handleHealth)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	api := router.Group("/api")
	{
		auth.NewHandler(authManager, cookie).Routes(api.Group("/users"))
	}
}
