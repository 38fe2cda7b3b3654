package repository

import (
	"context"
	"time"

	"github.com/timmy/examwatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationRepository handles the notification queue and delivery log.
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Enqueue inserts a queue entry. Used by the matcher and by tests.
func (r *NotificationRepository) Enqueue(ctx context.Context, entry *domain.NotificationQueueEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// GetByID retrieves a queue entry by its ID.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*domain.NotificationQueueEntry, error) {
	var entry domain.NotificationQueueEntry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListPending returns up to limit pending entries, oldest first.
func (r *NotificationRepository) ListPending(ctx context.Context, limit int) ([]domain.NotificationQueueEntry, error) {
	var entries []domain.NotificationQueueEntry
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.QueueStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// MarkProcessing moves a pending entry to processing and increments its
// attempt count. Returns false when the entry was no longer pending.
func (r *NotificationRepository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.NotificationQueueEntry{}).
		Where("id = ? AND status = ?", id, domain.QueueStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.QueueStatusProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkSent records successful delivery.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.NotificationQueueEntry{}).
		Where("id = ? AND status = ?", id, domain.QueueStatusProcessing).
		Updates(map[string]interface{}{
			"status":     domain.QueueStatusSent,
			"sent_at":    &now,
			"last_error": "",
			"updated_at": now,
		}).Error
}

// MarkFailed returns a processing entry to pending with the failure reason,
// or to dead when dead is set.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id, reason string, dead bool) error {
	status := domain.QueueStatusPending
	if dead {
		status = domain.QueueStatusDead
	}
	return r.db.WithContext(ctx).Model(&domain.NotificationQueueEntry{}).
		Where("id = ? AND status = ?", id, domain.QueueStatusProcessing).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": reason,
			"updated_at": time.Now(),
		}).Error
}

// ResetStaleProcessing returns entries left processing since before to
// pending. The interrupted attempt stays counted.
func (r *NotificationRepository) ResetStaleProcessing(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.NotificationQueueEntry{}).
		Where("status = ? AND updated_at < ?", domain.QueueStatusProcessing, before).
		Updates(map[string]interface{}{
			"status":     domain.QueueStatusPending,
			"last_error": "interrupted while processing",
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// InsertLogs writes delivery log rows, ignoring (user, exam, kind) duplicates.
func (r *NotificationRepository) InsertLogs(ctx context.Context, logs []domain.NotificationLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&logs).Error
}

// CountLogs counts delivery log rows for a user.
func (r *NotificationRepository) CountLogs(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.NotificationLog{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
