package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/timmy/examwatch/internal/config"
	"github.com/timmy/examwatch/internal/logger"
	"github.com/timmy/examwatch/internal/registry"
	"github.com/timmy/examwatch/internal/repository"
	"github.com/timmy/examwatch/internal/service"
	"github.com/timmy/examwatch/internal/source"
	"github.com/timmy/examwatch/internal/storage"
)

func main() {
	appLogger := logger.New(logger.OptionsFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	sourceID := flag.String("source", "", "Check only this source (overrides -tier)")
	tier := flag.Int("tier", -1, "Highest priority tier to check; 0 means all")
	schedule := flag.String("schedule", "", "Cron spec for repeated passes; empty runs one pass")
	recoverOnly := flag.Bool("recover", false, "Only re-drive stale queued events, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *sourceID != "" {
		cfg.Detect.SourceID = *sourceID
	}
	if *tier >= 0 {
		cfg.Detect.MaxTier = *tier
	}
	if *schedule != "" {
		cfg.Detect.Schedule = *schedule
	}

	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load source registry")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	ctx, cancel := context.WithCancel(appLogger.WithContext(context.Background()))
	defer cancel()
	ctx = logger.SetComponent(ctx, "detect")

	objectStorage, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	if err := storage.EnsureBucket(ctx, objectStorage); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	eventRepo := repository.NewEventRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	handoff, err := newHandoff(cfg, appLogger, eventRepo, ledgerRepo, repository.NewExamRepository(db), objectStorage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize handoff")
	}

	static := source.NewHTTPFetcher(source.HTTPFetcherConfig{
		Timeout:   cfg.Detect.Timeout,
		UserAgent: cfg.Detect.UserAgent,
		MaxBytes:  cfg.Detect.MaxDocBytes,
	})
	rendered := source.NewRenderedFetcher(cfg.Detect.BrowserURL, cfg.Detect.Timeout)
	defer rendered.Close()

	ingestService := service.NewIngestService(
		ledgerRepo,
		eventRepo,
		objectStorage,
		static,
		handoff,
		appLogger,
		&service.IngestConfig{
			Workers: cfg.Detect.Concurrency,
			Delay:   cfg.Detect.RequestDelay,
		},
	)
	detectService := service.NewDetectService(
		source.NewDetector(static, rendered, cfg.Detect.RequestDelay),
		repository.NewRunRepository(db),
		ingestService,
		appLogger,
		&service.DetectConfig{
			Workers: cfg.Detect.Concurrency,
			Delay:   cfg.Detect.RequestDelay,
		},
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	recoverStale := func() {
		n, err := ingestService.RecoverStale(ctx, cfg.Recovery.StaleAfter, cfg.Recovery.Limit)
		if err != nil {
			appLogger.WithError(err).Error("Recovery sweep failed")
			return
		}
		if n > 0 {
			appLogger.WithField(logger.FieldCount, n).Info("Re-drove stale events")
		}
	}

	if *recoverOnly {
		recoverStale()
		return
	}

	runPass := func() {
		sources, err := reg.Select(cfg.Detect.MaxTier, cfg.Detect.SourceID)
		if err != nil {
			appLogger.WithError(err).Error("Failed to select sources")
			return
		}
		detectService.RunPass(ctx, sources)
		recoverStale()
	}

	if cfg.Detect.Schedule == "" {
		runPass()
		return
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))
	if _, err := c.AddFunc(cfg.Detect.Schedule, runPass); err != nil {
		appLogger.WithError(err).WithField("schedule", cfg.Detect.Schedule).Fatal("Invalid schedule")
	}
	appLogger.WithFields(logger.Fields{
		"schedule": cfg.Detect.Schedule,
		"tier":     cfg.Detect.MaxTier,
		"source":   cfg.Detect.SourceID,
	}).Info("Detection scheduler started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	appLogger.Info("Detection scheduler stopped")
}

// newHandoff posts to the pipeline API when handoff.url is set and otherwise
// runs the pipeline in this process.
func newHandoff(
	cfg *config.Config,
	log *logger.Logger,
	eventRepo *repository.EventRepository,
	ledgerRepo *repository.LedgerRepository,
	examRepo *repository.ExamRepository,
	objectStorage storage.ObjectStorage,
) (service.Handoff, error) {
	if cfg.Handoff.URL != "" {
		return service.NewHTTPHandoff(cfg.Handoff.URL, cfg.Handoff.Secret, cfg.Handoff.Timeout), nil
	}

	provider, err := service.NewExtractionProvider(cfg.Extraction)
	if err != nil {
		return nil, err
	}
	pipeline := service.NewPipelineService(
		eventRepo,
		ledgerRepo,
		examRepo,
		objectStorage,
		service.PDFTextExtractor{},
		provider,
		service.NewMatchTrigger(cfg.Matcher.URL, cfg.Matcher.Secret, cfg.Matcher.Timeout),
		log,
		&service.PipelineConfig{
			MinTextLength: cfg.Extraction.MinTextLen,
			StaleAfter:    cfg.Recovery.StaleAfter,
		},
	)
	log.WithField("provider", provider.Name()).Info("No handoff URL configured, extracting in-process")
	return service.NewLocalHandoff(pipeline), nil
}
