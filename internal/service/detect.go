package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/examwatch/internal/domain"
	"github.com/timmy/examwatch/internal/logger"
	"github.com/timmy/examwatch/internal/repository"
	"github.com/timmy/examwatch/internal/source"
)

// ChangeDetector is the per-source change check used by DetectService.
type ChangeDetector interface {
	Detect(ctx context.Context, src domain.SourceConfig, lastFingerprint string) source.Detection
}

// DetectService runs detection passes over a set of sources, ingests the
// links of changed ones and appends one run record per source.
type DetectService struct {
	detector ChangeDetector
	runRepo  *repository.RunRepository
	ingest   *IngestService
	logger   *logger.Logger
	workers  int
	delay    time.Duration
}

// DetectConfig holds configuration for the detect service
type DetectConfig struct {
	Workers int
	// Delay is applied between sources handled by one worker.
	Delay time.Duration
}

// NewDetectService creates a new detect service
func NewDetectService(
	detector ChangeDetector,
	runRepo *repository.RunRepository,
	ingest *IngestService,
	log *logger.Logger,
	cfg *DetectConfig,
) *DetectService {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &DetectService{
		detector: detector,
		runRepo:  runRepo,
		ingest:   ingest,
		logger:   log,
		workers:  workers,
		delay:    cfg.Delay,
	}
}

// PassStats summarizes one detection pass.
type PassStats struct {
	Sources      int
	Changed      int
	Unchanged    int
	Partial      int
	Failed       int
	NewDocuments int
	Duration     time.Duration
}

// RunPass checks every source once with bounded concurrency.
func (s *DetectService) RunPass(ctx context.Context, sources []domain.SourceConfig) *PassStats {
	start := time.Now()
	ctx = logger.SetRunID(ctx, uuid.New().String())
	logger.CtxInfo(ctx, "Detection pass started for %d sources", len(sources))

	stats := &PassStats{Sources: len(sources)}
	var mu sync.Mutex

	work := make(chan domain.SourceConfig)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first := true
			for src := range work {
				if !first && s.delay > 0 {
					select {
					case <-ctx.Done():
					case <-time.After(s.delay):
					}
				}
				first = false

				run := s.DetectSource(ctx, src)

				mu.Lock()
				switch run.Status {
				case domain.RunStatusChanged:
					stats.Changed++
				case domain.RunStatusUnchanged:
					stats.Unchanged++
				case domain.RunStatusPartial:
					stats.Partial++
				default:
					stats.Failed++
				}
				stats.NewDocuments += run.NewDocuments
				mu.Unlock()
			}
		}()
	}

feed:
	for _, src := range sources {
		select {
		case work <- src:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	stats.Duration = time.Since(start)
	logger.With(logger.Fields{
		"sources":       stats.Sources,
		"changed":       stats.Changed,
		"unchanged":     stats.Unchanged,
		"partial":       stats.Partial,
		"failed":        stats.Failed,
		"new_documents": stats.NewDocuments,
	}).WithDuration(stats.Duration.Milliseconds()).Info(ctx, "Detection pass completed")
	return stats
}

// DetectSource checks one source and records the result. The new
// fingerprint is persisted only after every link of a changed source was
// downloaded and stored, so a failed link is retried on the next pass.
func (s *DetectService) DetectSource(ctx context.Context, src domain.SourceConfig) *domain.RunRecord {
	start := time.Now()
	ctx = logger.SetSource(ctx, src.ID)

	run := &domain.RunRecord{
		ID:       uuid.New().String(),
		SourceID: src.ID,
	}

	last, err := s.runRepo.LatestFingerprint(ctx, src.ID)
	if err != nil {
		run.Status = domain.RunStatusError
		run.ErrorDetail = "load last fingerprint: " + err.Error()
		return s.finish(ctx, run, start)
	}

	det := s.detector.Detect(ctx, src, last)
	run.HTTPStatus = det.HTTPStatus

	switch {
	case det.Failed():
		run.Status = runStatusFor(det.ErrorKind)
		if det.Err != nil {
			run.ErrorDetail = det.Err.Error()
		}
	case !det.Changed:
		run.Status = domain.RunStatusUnchanged
		run.Fingerprint = &det.Fingerprint
	default:
		stats := s.ingest.IngestLinks(ctx, src, det.Links)
		run.NewDocuments = int(stats.Ingested)
		if stats.DownloadFailed > 0 || stats.StorageFailed > 0 || ctx.Err() != nil {
			run.Status = domain.RunStatusPartial
			run.ErrorDetail = fmt.Sprintf("%d downloads failed, %d links not stored; fingerprint withheld",
				stats.DownloadFailed, stats.StorageFailed)
		} else {
			run.Status = domain.RunStatusChanged
			run.Fingerprint = &det.Fingerprint
		}
	}

	return s.finish(ctx, run, start)
}

func (s *DetectService) finish(ctx context.Context, run *domain.RunRecord, start time.Time) *domain.RunRecord {
	run.DurationMs = time.Since(start).Milliseconds()
	run.CreatedAt = time.Now()

	// A cancelled pass still records what it observed.
	if err := s.runRepo.Create(context.WithoutCancel(ctx), run); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to write run record")
	}

	entry := logger.With(logger.Fields{
		"http_status":   run.HTTPStatus,
		"new_documents": run.NewDocuments,
	}).WithDuration(run.DurationMs).WithStatus(string(run.Status))
	if run.ErrorDetail != "" {
		entry.With(logger.Fields{"error": run.ErrorDetail}).Warn(ctx, "Source checked")
	} else {
		entry.Info(ctx, "Source checked")
	}
	return run
}

func runStatusFor(kind source.ErrorKind) domain.RunStatus {
	switch kind {
	case source.ErrorBlocked:
		return domain.RunStatusBlocked
	case source.ErrorTimeout:
		return domain.RunStatusTimeout
	default:
		return domain.RunStatusError
	}
}
