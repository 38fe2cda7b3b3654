package repository

import (
	"context"
	"errors"

	"github.com/timmy/examwatch/internal/domain"
	"gorm.io/gorm"
)

// RunRepository persists change-detection run records.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create appends a run record.
func (r *RunRepository) Create(ctx context.Context, run *domain.RunRecord) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// LatestFingerprint returns the newest non-null content fingerprint recorded
// for a source, or "" when the source has never been seen unchanged or changed.
func (r *RunRepository) LatestFingerprint(ctx context.Context, sourceID string) (string, error) {
	var run domain.RunRecord
	err := r.db.WithContext(ctx).
		Where("source_id = ? AND fingerprint IS NOT NULL", sourceID).
		Order("created_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return *run.Fingerprint, nil
}

// ListBySource returns the most recent runs for a source, newest first.
func (r *RunRepository) ListBySource(ctx context.Context, sourceID string, limit int) ([]domain.RunRecord, error) {
	var runs []domain.RunRecord
	err := r.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
