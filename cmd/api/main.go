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

	"github.com/BradenHooton/sessionguard/internal/app"
	"github.com/BradenHooton/sessionguard/internal/background"
	"github.com/BradenHooton/sessionguard/internal/config"
	"github.com/BradenHooton/sessionguard/internal/handlers"
	"github.com/BradenHooton/sessionguard/internal/routes"
	pkghttp "github.com/BradenHooton/sessionguard/pkg/http"
	pkglogger "github.com/BradenHooton/sessionguard/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger, closer, err := pkglogger.New(pkglogger.Options{
		Level:     cfg.Log.Level,
		AuditFile: cfg.Log.AuditFile,
	})
	if err != nil {
		slog.Error("failed to initialize logger", slog.Any("error", err))
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Database.Driver),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	stores, err := app.OpenStores(ctx, &cfg.Database, true, logger)
	if err != nil {
		cancel()
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer stores.Close()

	core, err := app.New(ctx, cfg, stores, logger)
	cancel()
	if err != nil {
		logger.Error("failed to initialize services", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(core.Auth, core.Resets, core.CookieConfig(), logger)
	adminHandler := handlers.NewAdminHandler(core.Ledger, logger)

	deps := routes.Dependencies{
		Env:            cfg.Server.Env,
		Sessions:       core.Auth,
		Cookies:        core.CookieConfig(),
		IPConfig:       &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		LoginRateLimit: cfg.Server.LoginRateLimit,
		AuthHandler:    authHandler,
		AdminHandler:   adminHandler,
		Registry:       core.Registry,
		Logger:         logger,
	}
	if stores.DB != nil {
		deps.Health = stores.DB
	}
	router := routes.NewRouter(deps)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(core.Auth, logger, cfg.Auth.CleanupInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
