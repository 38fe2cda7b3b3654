package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/examwatch/internal/domain"
	"github.com/timmy/examwatch/internal/lock"
	"github.com/timmy/examwatch/internal/logger"
	"github.com/timmy/examwatch/internal/repository"
)

// DrainStats summarizes one drain request.
type DrainStats struct {
	RequestID string
	// Skipped is set when another drain held the lock.
	Skipped bool
	// Reclaimed counts entries a crashed drain left processing.
	Reclaimed int64
	Processed int
	Sent      int
	Failed    int
	Dead      int
	Duration  time.Duration
}

// DispatchConfig holds configuration for the dispatch service
type DispatchConfig struct {
	LockName    string
	LockTTL     time.Duration
	BatchSize   int
	SendDelay   time.Duration
	MaxAttempts int
	// StaleAfter is the age at which a processing entry is treated as
	// abandoned. Defaults to LockTTL.
	StaleAfter time.Duration
}

// DispatchService drains the notification queue through the mailer.
type DispatchService struct {
	locker    lock.Locker
	queueRepo *repository.NotificationRepository
	examRepo  *repository.ExamRepository
	mailer    Mailer
	renderer  *Renderer
	cfg       DispatchConfig
	logger    *logger.Logger
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(
	locker lock.Locker,
	queueRepo *repository.NotificationRepository,
	examRepo *repository.ExamRepository,
	mailer Mailer,
	renderer *Renderer,
	log *logger.Logger,
	cfg *DispatchConfig,
) *DispatchService {
	c := *cfg
	if c.LockName == "" {
		c.LockName = "notification-drain"
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = c.LockTTL
	}
	return &DispatchService{
		locker:    locker,
		queueRepo: queueRepo,
		examRepo:  examRepo,
		mailer:    mailer,
		renderer:  renderer,
		cfg:       c,
		logger:    log,
	}
}

func (s *DispatchService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Drain sends up to one batch of pending entries. Only one drain runs at a
// time across all processes; a concurrent call returns Skipped.
func (s *DispatchService) Drain(ctx context.Context, requestID string) (*DrainStats, error) {
	start := time.Now()
	stats := &DrainStats{RequestID: requestID}
	ctx = logger.SetRequestID(ctx, requestID)
	ctx = logger.SetComponent(ctx, "dispatch")

	holder := requestID + "-" + uuid.New().String()
	acquired, err := s.locker.TryAcquire(ctx, s.cfg.LockName, holder, s.cfg.LockTTL)
	if err != nil {
		return stats, fmt.Errorf("acquire drain lock: %w", err)
	}
	if !acquired {
		stats.Skipped = true
		s.log(ctx).Info("Another drain holds the lock, skipping")
		return stats, nil
	}
	defer func() {
		err := s.locker.Release(context.WithoutCancel(ctx), s.cfg.LockName, holder)
		if err != nil && !errors.Is(err, lock.ErrNotHeld) {
			s.log(ctx).WithError(err).Warn("Failed to release drain lock")
		}
	}()

	reclaimed, err := s.queueRepo.ResetStaleProcessing(ctx, time.Now().Add(-s.cfg.StaleAfter))
	if err != nil {
		s.log(ctx).WithError(err).Warn("Failed to reset abandoned queue entries")
	} else if reclaimed > 0 {
		stats.Reclaimed = reclaimed
		s.log(ctx).WithField(logger.FieldCount, reclaimed).Warn("Reset abandoned queue entries to pending")
	}

	entries, err := s.queueRepo.ListPending(ctx, s.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("list pending: %w", err)
	}

	for i := range entries {
		if i > 0 && s.cfg.SendDelay > 0 {
			select {
			case <-ctx.Done():
				stats.Duration = time.Since(start)
				return stats, ctx.Err()
			case <-time.After(s.cfg.SendDelay):
			}
		}
		s.deliver(ctx, &entries[i], stats)
	}

	stats.Duration = time.Since(start)
	logger.With(logger.Fields{
		"sent":   stats.Sent,
		"failed": stats.Failed,
		"dead":   stats.Dead,
	}).WithCount(stats.Processed).WithDuration(stats.Duration.Milliseconds()).Info(ctx, "Drain finished")
	return stats, nil
}

// deliver sends one entry and records its outcome.
func (s *DispatchService) deliver(ctx context.Context, entry *domain.NotificationQueueEntry, stats *DrainStats) {
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldQueueID: entry.ID,
		logger.FieldUserID:  entry.UserID,
	})

	claimed, err := s.queueRepo.MarkProcessing(ctx, entry.ID)
	if err != nil {
		s.log(ctx).WithError(err).Error("Failed to claim queue entry")
		return
	}
	if !claimed {
		return
	}
	stats.Processed++
	attempts := entry.Attempts + 1

	if err := s.send(ctx, entry); err != nil {
		dead := attempts >= s.cfg.MaxAttempts
		if markErr := s.queueRepo.MarkFailed(ctx, entry.ID, err.Error(), dead); markErr != nil {
			s.log(ctx).WithError(markErr).Error("Failed to record send failure")
		}
		if dead {
			stats.Dead++
			s.log(ctx).WithError(err).WithField("attempts", attempts).Error("Notification moved to dead letter")
		} else {
			stats.Failed++
			s.log(ctx).WithError(err).WithField("attempts", attempts).Warn("Notification send failed")
		}
		return
	}

	now := time.Now()
	logs := make([]domain.NotificationLog, 0, len(entry.ExamIDs))
	for _, examID := range entry.ExamIDs {
		logs = append(logs, domain.NotificationLog{
			ID:      uuid.New().String(),
			UserID:  entry.UserID,
			ExamID:  examID,
			Kind:    entry.Kind,
			QueueID: entry.ID,
			SentAt:  now,
		})
	}
	if err := s.queueRepo.InsertLogs(ctx, logs); err != nil {
		s.log(ctx).WithError(err).Error("Failed to write notification log")
	}
	if err := s.queueRepo.MarkSent(ctx, entry.ID); err != nil {
		s.log(ctx).WithError(err).Error("Failed to mark notification sent")
		return
	}
	stats.Sent++
}

func (s *DispatchService) send(ctx context.Context, entry *domain.NotificationQueueEntry) error {
	exams, err := s.examRepo.ListByIDsByDeadline(ctx, entry.ExamIDs)
	if err != nil {
		return fmt.Errorf("load exams: %w", err)
	}
	msg, err := s.renderer.Render(entry, exams)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg)
}
