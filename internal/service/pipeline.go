package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/timmy/examwatch/internal/domain"
	"github.com/timmy/examwatch/internal/logger"
	"github.com/timmy/examwatch/internal/repository"
	"github.com/timmy/examwatch/internal/storage"
	"gorm.io/gorm"
)

// ErrEventNotFound is returned for an unknown ingestion event id.
var ErrEventNotFound = errors.New("ingestion event not found")

// ErrImageOnly marks a document without enough extractable text.
var ErrImageOnly = errors.New("image_only")

// Outcome is the result of handling one ingestion event.
type Outcome string

const (
	OutcomeDone             Outcome = "done"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeFailed           Outcome = "failed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomeInProgress means another worker owns the event.
	OutcomeInProgress Outcome = "in_progress"
)

// PipelineService turns stored documents into unverified exam records.
type PipelineService struct {
	eventRepo  *repository.EventRepository
	ledgerRepo *repository.LedgerRepository
	examRepo   *repository.ExamRepository
	storage    storage.ObjectStorage
	text       TextExtractor
	provider   ExtractionProvider
	matcher    MatchTrigger
	minTextLen int
	staleAfter time.Duration
	logger     *logger.Logger
	now        func() time.Time
}

// PipelineConfig holds configuration for the pipeline service
type PipelineConfig struct {
	MinTextLength int
	// StaleAfter is how long an event may sit in processing before another
	// worker may take it over.
	StaleAfter time.Duration
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(
	eventRepo *repository.EventRepository,
	ledgerRepo *repository.LedgerRepository,
	examRepo *repository.ExamRepository,
	objectStorage storage.ObjectStorage,
	text TextExtractor,
	provider ExtractionProvider,
	matcher MatchTrigger,
	log *logger.Logger,
	cfg *PipelineConfig,
) *PipelineService {
	minLen := cfg.MinTextLength
	if minLen <= 0 {
		minLen = 100
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if matcher == nil {
		matcher = noopMatchTrigger{}
	}
	return &PipelineService{
		eventRepo:  eventRepo,
		ledgerRepo: ledgerRepo,
		examRepo:   examRepo,
		storage:    objectStorage,
		text:       text,
		provider:   provider,
		matcher:    matcher,
		minTextLen: minLen,
		staleAfter: staleAfter,
		logger:     log,
		now:        time.Now,
	}
}

func (s *PipelineService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Handle processes one event. It is idempotent: a fingerprint already marked
// processed in the ledger is a no-op success. Per-document failures are
// reported as OutcomeFailed or OutcomeSkipped with a nil error; the error
// is reserved for unknown events and database faults.
func (s *PipelineService) Handle(ctx context.Context, eventID string) (Outcome, error) {
	ctx = logger.SetEventID(ctx, eventID)

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if err != nil {
		return "", fmt.Errorf("load event: %w", err)
	}
	ctx = logger.WithField(ctx, logger.FieldFingerprint, event.Fingerprint)

	processed, err := s.ledgerRepo.IsProcessed(ctx, event.Fingerprint)
	if err != nil {
		return "", fmt.Errorf("ledger gate: %w", err)
	}
	if processed {
		s.log(ctx).Debug("Fingerprint already processed")
		return OutcomeAlreadyProcessed, nil
	}

	claimed, err := s.claim(ctx, event.ID)
	if err != nil {
		return "", fmt.Errorf("claim event: %w", err)
	}
	if !claimed {
		return OutcomeInProgress, nil
	}

	data, err := s.download(ctx, event.StorageKey)
	if err != nil {
		return s.fail(ctx, event, fmt.Errorf("storage: %w", err))
	}

	text, err := s.text.ExtractText(data)
	if err != nil {
		return s.fail(ctx, event, fmt.Errorf("text extraction: %w", err))
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < s.minTextLen {
		return s.skip(ctx, event)
	}

	ec := ExtractionContext{
		SourceID:   event.SourceID,
		SourceName: event.SourceName,
		Category:   event.Category,
		State:      event.State,
		SourceURL:  event.SourceURL,
		AnchorText: event.AnchorText,
	}
	raw, err := s.provider.ExtractStructured(ctx, text, ec)
	if err != nil {
		return s.fail(ctx, event, fmt.Errorf("%s: %w", s.provider.Name(), err))
	}

	exam, err := ValidateExam(raw, ec)
	if err != nil {
		return s.fail(ctx, event, err)
	}

	exam, err = s.insertExam(ctx, exam, event.Fingerprint)
	if err != nil {
		return s.fail(ctx, event, fmt.Errorf("insert exam: %w", err))
	}

	err = s.eventRepo.Transition(ctx, event.ID,
		[]domain.EventStatus{domain.EventStatusProcessing}, domain.EventStatusDone,
		map[string]interface{}{
			"provider":     s.provider.Name(),
			"confidence":   exam.Confidence,
			"exam_id":      exam.ID,
			"error_detail": "",
		})
	if err != nil {
		return "", fmt.Errorf("complete event: %w", err)
	}

	s.purge(ctx, event, string(OutcomeDone))

	if exam.Confidence == domain.ConfidenceHigh {
		if err := s.matcher.Trigger(ctx, exam.ID); err != nil {
			s.log(ctx).WithError(err).WithField("exam_id", exam.ID).Warn("Matcher trigger failed")
		}
	}

	logger.With(logger.Fields{
		"exam_id":    exam.ID,
		"confidence": exam.Confidence,
		"provider":   s.provider.Name(),
	}).WithStatus(string(OutcomeDone)).Info(ctx, "Exam extracted")
	return OutcomeDone, nil
}

// claim moves a queued event to processing, or takes over one a crashed
// worker left processing for longer than staleAfter.
func (s *PipelineService) claim(ctx context.Context, id string) (bool, error) {
	err := s.eventRepo.Transition(ctx, id,
		[]domain.EventStatus{domain.EventStatusQueued}, domain.EventStatusProcessing, nil)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, repository.ErrStaleTransition) {
		return false, err
	}

	err = s.eventRepo.ReclaimStale(ctx, id, s.now().Add(-s.staleAfter))
	if errors.Is(err, repository.ErrStaleTransition) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.log(ctx).Warn("Reclaimed event abandoned in processing")
	return true, nil
}

func (s *PipelineService) download(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.storage.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// insertExam creates the exam, or returns the one already extracted from the
// same document by an earlier attempt that crashed before completing.
func (s *PipelineService) insertExam(ctx context.Context, exam *domain.Exam, fingerprint string) (*domain.Exam, error) {
	existing, err := s.examRepo.GetByFingerprint(ctx, fingerprint)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	exam.ID = uuid.New().String()
	exam.ContentFingerprint = fingerprint
	exam.Provider = s.provider.Name()
	exam.Verified = false
	exam.Active = false
	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, err
	}
	return exam, nil
}

func (s *PipelineService) skip(ctx context.Context, event *domain.IngestionEvent) (Outcome, error) {
	err := s.eventRepo.Transition(ctx, event.ID,
		[]domain.EventStatus{domain.EventStatusProcessing}, domain.EventStatusSkipped,
		map[string]interface{}{"error_detail": ErrImageOnly.Error()})
	if err != nil {
		return "", fmt.Errorf("skip event: %w", err)
	}
	s.purge(ctx, event, string(OutcomeSkipped))
	s.log(ctx).Info("Document has no extractable text, skipped")
	return OutcomeSkipped, nil
}

func (s *PipelineService) fail(ctx context.Context, event *domain.IngestionEvent, cause error) (Outcome, error) {
	err := s.eventRepo.Transition(ctx, event.ID,
		[]domain.EventStatus{domain.EventStatusProcessing}, domain.EventStatusFailed,
		map[string]interface{}{"error_detail": cause.Error()})
	if err != nil {
		return "", fmt.Errorf("fail event: %w", err)
	}
	s.purge(ctx, event, string(OutcomeFailed))
	s.log(ctx).WithError(cause).Warn("Document processing failed")
	return OutcomeFailed, nil
}

// purge deletes the stored bytes and closes the ledger gate. Errors are
// logged; the event outcome is already durable.
func (s *PipelineService) purge(ctx context.Context, event *domain.IngestionEvent, outcome string) {
	if err := s.storage.Delete(ctx, event.StorageKey); err != nil {
		s.log(ctx).WithError(err).WithField("key", event.StorageKey).Warn("Failed to delete document bytes")
	}
	if err := s.ledgerRepo.MarkProcessed(ctx, event.Fingerprint, outcome); err != nil {
		s.log(ctx).WithError(err).Error("Failed to mark ledger processed")
	}
}

// RetryEvent moves a failed event back to queued and reopens the ledger gate
// for its fingerprint. The caller re-drives it through Handle.
func (s *PipelineService) RetryEvent(ctx context.Context, eventID string) (*domain.IngestionEvent, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}

	err = s.eventRepo.Transition(ctx, event.ID,
		[]domain.EventStatus{domain.EventStatusFailed}, domain.EventStatusQueued,
		map[string]interface{}{"error_detail": ""})
	if err != nil {
		return nil, err
	}
	if err := s.ledgerRepo.ClearProcessed(ctx, event.Fingerprint); err != nil {
		return nil, fmt.Errorf("reopen ledger: %w", err)
	}

	event.Status = domain.EventStatusQueued
	event.ErrorDetail = ""
	return event, nil
}

// GetEvent returns one event.
func (s *PipelineService) GetEvent(ctx context.Context, eventID string) (*domain.IngestionEvent, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	return event, err
}

// ListEvents lists events by status, newest first. An empty status lists all.
func (s *PipelineService) ListEvents(ctx context.Context, status domain.EventStatus, limit, offset int) ([]domain.IngestionEvent, error) {
	return s.eventRepo.ListByStatus(ctx, status, limit, offset)
}
