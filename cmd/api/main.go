package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fluent-backend/infrastructure/config"
	"fluent-backend/infrastructure/di"
	"fluent-backend/interfaces/http/rest"
	"fluent-backend/pkg/observability"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()
	logger := container.Logger

	watcher, err := config.NewConfigWatcher(cfg, logger)
	if err != nil {
		logger.Warn("Configuration watcher unavailable", zap.Error(err))
	} else {
		watcher.OnChange(config.LevelUpdater(container.LogLevel, logger))
		defer watcher.Stop()
	}

	var metrics *observability.Collector
	if cfg.EnableMetrics {
		metrics = container.Metrics
	}
	router := rest.NewRouter(rest.Options{
		Storage:    container.Storage,
		Sentences:  container.Sentences,
		Source:     container.Source,
		Sync:       container.Sync,
		Exporter:   container.Exporter,
		Metrics:    metrics,
		EnableCORS: cfg.EnableCORS,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.SyncInterval > 0 {
		go func() {
			logger.Info("Starting scheduled sync", zap.Duration("interval", cfg.SyncInterval))
			if err := container.Sync.Watch(ctx, cfg.SyncInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Scheduled sync stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
			zap.String("storage", cfg.StorageBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}
