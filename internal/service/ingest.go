package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/examwatch/internal/domain"
	"github.com/timmy/examwatch/internal/logger"
	"github.com/timmy/examwatch/internal/repository"
	"github.com/timmy/examwatch/internal/source"
	"github.com/timmy/examwatch/internal/storage"
	"golang.org/x/sync/singleflight"
)

// LinkOutcome is the result of ingesting one candidate link.
type LinkOutcome string

const (
	OutcomeDownloadFailed LinkOutcome = "download_failed"
	OutcomeNotPDF         LinkOutcome = "not_pdf"
	OutcomeDuplicate      LinkOutcome = "duplicate"
	OutcomeStorageFailed  LinkOutcome = "storage_failed"
	OutcomeIngested       LinkOutcome = "ingested"
)

var pdfMagic = []byte("%PDF-")

// IngestService downloads candidate documents, deduplicates them by content
// and hands new ones to the extraction pipeline.
type IngestService struct {
	ledgerRepo *repository.LedgerRepository
	eventRepo  *repository.EventRepository
	storage    storage.ObjectStorage
	downloader source.Fetcher
	handoff    Handoff
	logger     *logger.Logger
	workers    int
	delay      time.Duration
	group      singleflight.Group
	now        func() time.Time
}

// IngestConfig holds configuration for the ingest service
type IngestConfig struct {
	Workers int
	// Delay is applied between downloads issued by one worker.
	Delay time.Duration
}

// NewIngestService creates a new ingest service
func NewIngestService(
	ledgerRepo *repository.LedgerRepository,
	eventRepo *repository.EventRepository,
	objectStorage storage.ObjectStorage,
	downloader source.Fetcher,
	handoff Handoff,
	log *logger.Logger,
	cfg *IngestConfig,
) *IngestService {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &IngestService{
		ledgerRepo: ledgerRepo,
		eventRepo:  eventRepo,
		storage:    objectStorage,
		downloader: downloader,
		handoff:    handoff,
		logger:     log,
		workers:    workers,
		delay:      cfg.Delay,
		now:        time.Now,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *IngestService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// IngestStats holds statistics for one source's ingestion
type IngestStats struct {
	TotalLinks     int64
	Ingested       int64
	Duplicates     int64
	DownloadFailed int64
	NotPDF         int64
	StorageFailed  int64
	HandoffFailed  int64
	StartTime      time.Time
	EndTime        time.Time
}

func (st *IngestStats) record(outcome LinkOutcome) {
	switch outcome {
	case OutcomeIngested:
		atomic.AddInt64(&st.Ingested, 1)
	case OutcomeDuplicate:
		atomic.AddInt64(&st.Duplicates, 1)
	case OutcomeDownloadFailed:
		atomic.AddInt64(&st.DownloadFailed, 1)
	case OutcomeNotPDF:
		atomic.AddInt64(&st.NotPDF, 1)
	case OutcomeStorageFailed:
		atomic.AddInt64(&st.StorageFailed, 1)
	}
}

type linkResult struct {
	link          source.Link
	outcome       LinkOutcome
	handoffFailed bool
	err           error
}

// IngestLinks processes every link of one source on a bounded worker pool.
// Per-link failures are counted, never returned; the batch always runs to
// completion unless ctx is cancelled.
func (s *IngestService) IngestLinks(ctx context.Context, src domain.SourceConfig, links []source.Link) *IngestStats {
	stats := &IngestStats{
		TotalLinks: int64(len(links)),
		StartTime:  s.now(),
	}

	linksChan := make(chan source.Link)
	resultsChan := make(chan *linkResult, s.workers*2)

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, src, linksChan, resultsChan)
		}()
	}

	// Start result collector
	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			stats.record(result.outcome)
			if result.handoffFailed {
				atomic.AddInt64(&stats.HandoffFailed, 1)
			}
			if result.err != nil {
				s.log(ctx).WithFields(logger.Fields{
					"url":     result.link.URL,
					"outcome": result.outcome,
				}).WithError(result.err).Warn("Link not ingested")
			}
		}
		close(done)
	}()

feed:
	for _, link := range links {
		select {
		case linksChan <- link:
		case <-ctx.Done():
			break feed
		}
	}

	// Close links channel and wait for workers
	close(linksChan)
	wg.Wait()

	// Close results channel and wait for collector
	close(resultsChan)
	<-done

	stats.EndTime = s.now()

	logger.With(logger.Fields{
		"total":           stats.TotalLinks,
		"ingested":        stats.Ingested,
		"duplicates":      stats.Duplicates,
		"download_failed": stats.DownloadFailed,
		"not_pdf":         stats.NotPDF,
		"storage_failed":  stats.StorageFailed,
		"handoff_failed":  stats.HandoffFailed,
	}).WithDuration(stats.EndTime.Sub(stats.StartTime).Milliseconds()).Info(ctx, "Ingestion completed")

	return stats
}

func (s *IngestService) worker(ctx context.Context, src domain.SourceConfig, links <-chan source.Link, results chan<- *linkResult) {
	first := true
	for link := range links {
		if !first && s.delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.delay):
			}
		}
		first = false

		if ctx.Err() != nil {
			results <- &linkResult{link: link, outcome: OutcomeDownloadFailed, err: ctx.Err()}
			continue
		}

		results <- s.ingestLink(ctx, src, link)
	}
}

// ingestLink downloads one link and, when its bytes are new, stores them,
// records them in the ledger, creates a queued event and hands it off.
func (s *IngestService) ingestLink(ctx context.Context, src domain.SourceConfig, link source.Link) *linkResult {
	result := &linkResult{link: link}

	page, err := s.downloader.Fetch(ctx, link.URL)
	if err != nil {
		result.outcome = OutcomeDownloadFailed
		result.err = err
		return result
	}
	if !bytes.HasPrefix(page.Body, pdfMagic) {
		result.outcome = OutcomeNotPDF
		return result
	}

	fingerprint := ContentFingerprint(page.Body)

	// Concurrent workers that fetched the same bytes share one store attempt.
	// Only the caller whose token won reports the document as ingested.
	token := uuid.New().String()
	v, _, _ := s.group.Do(fingerprint, func() (interface{}, error) {
		return s.store(ctx, src, link, page.Body, fingerprint, token), nil
	})
	stored := v.(*storeResult)

	if stored.token != token && stored.outcome == OutcomeIngested {
		result.outcome = OutcomeDuplicate
		return result
	}
	result.outcome = stored.outcome
	result.err = stored.err
	if stored.event == nil {
		return result
	}

	if err := s.handoff.Handoff(ctx, PayloadFromEvent(stored.event)); err != nil {
		result.handoffFailed = true
		s.log(ctx).WithFields(logger.Fields{
			logger.FieldEventID:     stored.event.ID,
			logger.FieldFingerprint: fingerprint,
		}).WithError(err).Warn("Handoff failed, event stays queued")
	}
	return result
}

type storeResult struct {
	token   string
	outcome LinkOutcome
	event   *domain.IngestionEvent
	err     error
}

func (s *IngestService) store(ctx context.Context, src domain.SourceConfig, link source.Link, data []byte, fingerprint, token string) *storeResult {
	res := &storeResult{token: token}

	exists, err := s.ledgerRepo.Exists(ctx, fingerprint)
	if err != nil {
		res.outcome, res.err = OutcomeStorageFailed, fmt.Errorf("ledger lookup: %w", err)
		return res
	}
	if exists {
		res.outcome = OutcomeDuplicate
		return res
	}

	now := s.now()
	key := StorageKey(src.ID, fingerprint, now)
	err = s.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf")
	if err != nil && !errors.Is(err, storage.ErrObjectExists) {
		res.outcome, res.err = OutcomeStorageFailed, err
		return res
	}

	inserted, err := s.ledgerRepo.Insert(ctx, &domain.LedgerEntry{
		Fingerprint: fingerprint,
		SourceURL:   link.URL,
		SourceID:    src.ID,
		StorageKey:  key,
		FileSize:    int64(len(data)),
		CreatedAt:   now,
	})
	if err != nil {
		res.outcome, res.err = OutcomeStorageFailed, fmt.Errorf("ledger insert: %w", err)
		return res
	}
	if !inserted {
		// Another process recorded these bytes first, possibly under a
		// different source prefix.
		s.dropOrphan(ctx, fingerprint, key)
		res.outcome = OutcomeDuplicate
		return res
	}

	event := &domain.IngestionEvent{
		ID:          uuid.New().String(),
		SourceID:    src.ID,
		SourceName:  src.Name,
		Category:    src.Category,
		State:       src.State,
		SourceURL:   link.URL,
		Fingerprint: fingerprint,
		StorageKey:  key,
		AnchorText:  link.AnchorText,
		Context:     link.Context,
		Status:      domain.EventStatusQueued,
		ScrapedAt:   now,
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		// The ledger row exists, so the document will not be ingested again
		// from a link; the stored bytes remain for manual recovery.
		res.outcome, res.err = OutcomeStorageFailed, fmt.Errorf("event insert: %w", err)
		return res
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldEventID:     event.ID,
		logger.FieldFingerprint: fingerprint,
		logger.FieldSize:        len(data),
		"key":                   key,
	}).Info("Document ingested")

	res.outcome = OutcomeIngested
	res.event = event
	return res
}

func (s *IngestService) dropOrphan(ctx context.Context, fingerprint, key string) {
	entry, err := s.ledgerRepo.Get(ctx, fingerprint)
	if err != nil {
		return
	}
	// A processed winner has already purged its bytes, so an object under
	// the shared key is ours and nothing else will remove it.
	if entry.StorageKey == key && entry.ProcessedAt == nil {
		return
	}
	if err := s.storage.Delete(ctx, key); err != nil {
		s.log(ctx).WithError(err).WithField("key", key).Warn("Failed to remove duplicate upload")
	}
}

// RecoverStale re-drives events left queued, or abandoned in processing,
// for longer than staleAfter through the handoff. Returns the number of
// successful handoffs.
func (s *IngestService) RecoverStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	events, err := s.eventRepo.ListStale(ctx, s.now().Add(-staleAfter), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale events: %w", err)
	}

	recovered := 0
	for i := range events {
		if ctx.Err() != nil {
			break
		}
		event := &events[i]
		if err := s.handoff.Handoff(ctx, PayloadFromEvent(event)); err != nil {
			s.log(ctx).WithField(logger.FieldEventID, event.ID).WithError(err).Warn("Recovery handoff failed")
			continue
		}
		recovered++
	}

	logger.With(logger.Fields{"stale": len(events)}).WithCount(recovered).Info(ctx, "Recovery sweep completed")
	return recovered, nil
}

// ContentFingerprint returns the hex SHA-256 of raw document bytes.
func ContentFingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StorageKey returns the deterministic object key for a document.
func StorageKey(sourceID, fingerprint string, at time.Time) string {
	return fmt.Sprintf("%s/%04d/%02d/%s.pdf", sourceID, at.Year(), int(at.Month()), fingerprint)
}
