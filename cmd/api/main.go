package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/timmy/examwatch/internal/api"
	"github.com/timmy/examwatch/internal/api/handler"
	"github.com/timmy/examwatch/internal/config"
	"github.com/timmy/examwatch/internal/lock"
	"github.com/timmy/examwatch/internal/logger"
	"github.com/timmy/examwatch/internal/repository"
	"github.com/timmy/examwatch/internal/service"
	"github.com/timmy/examwatch/internal/storage"
	"gorm.io/gorm"
)

func main() {
	appLogger := logger.New(logger.OptionsFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to get database handle")
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	objectStorage, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	if err := storage.EnsureBucket(ctx, objectStorage); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	// Repositories
	eventRepo := repository.NewEventRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	examRepo := repository.NewExamRepository(db)
	runRepo := repository.NewRunRepository(db)
	queueRepo := repository.NewNotificationRepository(db)

	// Extraction pipeline
	provider, err := service.NewExtractionProvider(cfg.Extraction)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize extraction provider")
	}
	pipeline := service.NewPipelineService(
		eventRepo,
		ledgerRepo,
		examRepo,
		objectStorage,
		service.PDFTextExtractor{},
		provider,
		service.NewMatchTrigger(cfg.Matcher.URL, cfg.Matcher.Secret, cfg.Matcher.Timeout),
		appLogger,
		&service.PipelineConfig{
			MinTextLength: cfg.Extraction.MinTextLen,
			StaleAfter:    cfg.Recovery.StaleAfter,
		},
	)
	queue := service.NewEventQueue(pipeline, cfg.Server.PipelineWorkers, cfg.Server.PipelineQueue, appLogger)
	queue.Start(ctx)

	// Notification dispatch
	locker, closeLocker := newLocker(cfg, db)
	defer closeLocker()
	dispatch := service.NewDispatchService(
		locker,
		queueRepo,
		examRepo,
		service.NewHTTPMailer(cfg.Mail),
		service.NewRenderer(cfg.Mail.SiteURL),
		appLogger,
		&service.DispatchConfig{
			LockName:    cfg.Dispatch.LockName,
			LockTTL:     cfg.Dispatch.LockTTL,
			BatchSize:   cfg.Dispatch.BatchSize,
			SendDelay:   cfg.Dispatch.SendDelay,
			MaxAttempts: cfg.Dispatch.MaxAttempts,
		},
	)

	router := api.SetupRouter(api.RouterConfig{
		Mode:           cfg.Server.Mode,
		HandoffSecret:  cfg.Handoff.Secret,
		DrainSecret:    cfg.Dispatch.Secret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         appLogger,
		Health:         handler.NewHealthHandler(sqlDB),
		Pipeline:       handler.NewPipelineHandler(pipeline, queue),
		Sources:        handler.NewSourceHandler(runRepo),
		Notifications:  handler.NewNotificationHandler(dispatch),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":          cfg.Server.Port,
			"mode":          cfg.Server.Mode,
			"provider":      provider.Name(),
			"lock_backend":  cfg.Dispatch.LockBackend,
			"pipeline_pool": cfg.Server.PipelineWorkers,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	// Let queued events finish; events still queued are picked up by recovery.
	queue.Stop()

	appLogger.Info("Server exited")
}

// newLocker builds the drain lock for the configured backend.
func newLocker(cfg *config.Config, db *gorm.DB) (lock.Locker, func()) {
	if cfg.Dispatch.LockBackend != "redis" {
		return lock.NewDBLocker(db), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return lock.NewRedisLocker(client), func() { client.Close() }
}
