package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/examwatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBLocker implements Locker on the dispatch_locks table. A lease row is
// inserted, or taken over only when the existing row has expired.
type DBLocker struct {
	db *gorm.DB
}

// NewDBLocker creates a Locker backed by db.
func NewDBLocker(db *gorm.DB) *DBLocker {
	return &DBLocker{db: db}
}

// TryAcquire implements Locker.
func (l *DBLocker) TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	record := domain.LockRecord{
		Name:      name,
		Holder:    holder,
		ExpiresAt: now.Add(ttl),
	}

	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"holder", "expires_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "dispatch_locks.expires_at < ?", Vars: []interface{}{now}},
			}},
		}).
		Create(&record)
	if res.Error != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Release implements Locker.
func (l *DBLocker) Release(ctx context.Context, name, holder string) error {
	res := l.db.WithContext(ctx).
		Where("name = ? AND holder = ?", name, holder).
		Delete(&domain.LockRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotHeld
	}
	return nil
}
