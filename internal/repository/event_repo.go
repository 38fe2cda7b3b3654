package repository

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/examwatch/internal/domain"
	"gorm.io/gorm"
)

// ErrStaleTransition is returned when a status update finds the event in a
// state it may not transition from.
var ErrStaleTransition = errors.New("event not in expected status")

// EventRepository handles ingestion event operations.
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new ingestion event.
func (r *EventRepository) Create(ctx context.Context, event *domain.IngestionEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// GetByID retrieves an event by its ID.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*domain.IngestionEvent, error) {
	var event domain.IngestionEvent
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// Transition moves an event from one of the allowed statuses to the target
// status, applying extra column updates. Returns ErrStaleTransition when the
// event is not in an allowed status.
func (r *EventRepository) Transition(ctx context.Context, id string, from []domain.EventStatus, to domain.EventStatus, fields map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	res := r.db.WithContext(ctx).Model(&domain.IngestionEvent{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// ListByStatus lists events with a given status, newest first. An empty
// status lists all events.
func (r *EventRepository) ListByStatus(ctx context.Context, status domain.EventStatus, limit, offset int) ([]domain.IngestionEvent, error) {
	var events []domain.IngestionEvent
	query := r.db.WithContext(ctx).Model(&domain.IngestionEvent{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&events).Error
	return events, err
}

// ListStale lists events whose pipeline run never finished: still queued,
// or left processing by a crashed worker, with no update since before.
// Oldest first.
func (r *EventRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.IngestionEvent, error) {
	var events []domain.IngestionEvent
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]domain.EventStatus{domain.EventStatusQueued, domain.EventStatusProcessing}, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// ReclaimStale takes over a processing event untouched since before,
// refreshing its updated_at. Returns ErrStaleTransition when the event is
// not processing or another worker touched it recently.
func (r *EventRepository) ReclaimStale(ctx context.Context, id string, before time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.IngestionEvent{}).
		Where("id = ? AND status = ? AND updated_at < ?", id, domain.EventStatusProcessing, before).
		Update("updated_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// CountByFingerprint counts events created for a content fingerprint.
func (r *EventRepository) CountByFingerprint(ctx context.Context, fingerprint string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.IngestionEvent{}).
		Where("fingerprint = ?", fingerprint).
		Count(&count).Error
	return count, err
}
