package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medgrid/scanflow/internal/api"
	"github.com/medgrid/scanflow/internal/api/middleware"
	"github.com/medgrid/scanflow/internal/config"
	"github.com/medgrid/scanflow/internal/logger"
	"github.com/medgrid/scanflow/internal/notify"
	"github.com/medgrid/scanflow/internal/repository"
	"github.com/medgrid/scanflow/internal/service"
	"github.com/medgrid/scanflow/internal/storage"
)

func main() {
	appLogger := logger.New(nil)
	logger.SetDefault(appLogger)
	defer logger.Sync()

	// CONFIG_PATH overrides the default config lookup for deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	ctx := context.Background()
	repos := repository.NewRepos(db)
	if err := repos.Modalities.SeedDefaults(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to seed modalities")
	}

	archiver, err := storage.NewArchiveStore(&cfg.Archive)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize archive store")
	}
	if archiver != nil {
		if err := archiver.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
		}
		appLogger.WithField("provider", cfg.Archive.Provider).Info("Artifact archival enabled")
	}

	notifier := notify.NewWebhook(&cfg.Webhook)
	if notifier != nil {
		appLogger.WithField("url", cfg.Webhook.URL).Info("Job event webhook enabled")
	}

	cache := service.NewModalityCache(repos.Modalities, cfg.Modalities.CacheSize, cfg.Modalities.CacheTTL)
	orchestrator := service.NewOrchestrator(db, cache, service.NewDispatcher(), archiver, notifier, cfg.Queue)

	router := api.SetupRouter(orchestrator, cfg.Server.Mode, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithField("port", cfg.Server.Port).Info("Starting scanflow API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Forced shutdown")
	}
}
