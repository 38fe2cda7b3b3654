package repository

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/examwatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository manages the permanent content-fingerprint ledger.
// Entries are only ever inserted or annotated, never deleted.
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Get retrieves a ledger entry by fingerprint. Returns gorm.ErrRecordNotFound
// when the content has never been seen.
func (r *LedgerRepository) Get(ctx context.Context, fingerprint string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	if err := r.db.WithContext(ctx).First(&entry, "fingerprint = ?", fingerprint).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// Exists checks whether a fingerprint is already in the ledger.
func (r *LedgerRepository) Exists(ctx context.Context, fingerprint string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("fingerprint = ?", fingerprint).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Insert records a new fingerprint, ignoring duplicates.
// Returns:
//   - bool: true if this call created the row, false if it already existed.
func (r *LedgerRepository) Insert(ctx context.Context, entry *domain.LedgerEntry) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IsProcessed reports whether the pipeline already reached a terminal outcome
// for this fingerprint.
func (r *LedgerRepository) IsProcessed(ctx context.Context, fingerprint string) (bool, error) {
	entry, err := r.Get(ctx, fingerprint)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return entry.ProcessedAt != nil, nil
}

// MarkProcessed stamps the terminal pipeline outcome for a fingerprint.
func (r *LedgerRepository) MarkProcessed(ctx context.Context, fingerprint, outcome string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("fingerprint = ?", fingerprint).
		Updates(map[string]interface{}{
			"processed_at": &now,
			"outcome":      outcome,
		}).Error
}

// ClearProcessed reopens a fingerprint for a manual retry.
func (r *LedgerRepository) ClearProcessed(ctx context.Context, fingerprint string) error {
	return r.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("fingerprint = ?", fingerprint).
		Updates(map[string]interface{}{
			"processed_at": nil,
			"outcome":      "",
		}).Error
}

// Count returns the number of ledger rows.
func (r *LedgerRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.LedgerEntry{}).Count(&count).Error
	return count, err
}
