package repository

import (
	"context"

	"github.com/timmy/examwatch/internal/domain"
	"gorm.io/gorm"
)

// ExamRepository handles exam record operations.
type ExamRepository struct {
	db *gorm.DB
}

// NewExamRepository creates a new ExamRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ExamRepository: repository instance bound to db.
func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

// Create inserts a new exam record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - exam: exam record to persist.
// Returns:
//   - error: non-nil if the insert fails, including a duplicate fingerprint.
func (r *ExamRepository) Create(ctx context.Context, exam *domain.Exam) error {
	return r.db.WithContext(ctx).Create(exam).Error
}

// GetByID retrieves an exam by its ID.
func (r *ExamRepository) GetByID(ctx context.Context, id string) (*domain.Exam, error) {
	var exam domain.Exam
	if err := r.db.WithContext(ctx).First(&exam, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

// GetByFingerprint retrieves the exam extracted from a document.
func (r *ExamRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Exam, error) {
	var exam domain.Exam
	if err := r.db.WithContext(ctx).First(&exam, "content_fingerprint = ?", fingerprint).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

// ListByIDsByDeadline returns the given exams ordered by closest application
// deadline first. Unknown IDs are silently absent from the result.
func (r *ExamRepository) ListByIDsByDeadline(ctx context.Context, ids []string) ([]domain.Exam, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var exams []domain.Exam
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("application_end ASC").
		Find(&exams).Error
	return exams, err
}

// Count returns the number of exam rows.
func (r *ExamRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Exam{}).Count(&count).Error
	return count, err
}
