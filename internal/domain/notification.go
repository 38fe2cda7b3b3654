package domain

import "time"

// NotificationKind selects the subject/body rule used to render a message.
type NotificationKind string

const (
	KindDeadlineReminder NotificationKind = "deadline_reminder"
	KindNewExam          NotificationKind = "new_exam"
	KindWeeklyDigest     NotificationKind = "weekly_digest"
)

// QueueStatus represents the delivery state of a queued notification.
// Transitions: pending → processing → sent, processing → pending on failure,
// processing → dead once the attempt budget is exhausted.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusSent       QueueStatus = "sent"
	QueueStatusDead       QueueStatus = "dead"
)

// NotificationQueueEntry is one pending message to one user covering one or
// more exams. Rows are inserted by the matcher and owned by the dispatcher.
type NotificationQueueEntry struct {
	ID        string           `gorm:"type:text;primaryKey" json:"id"`
	UserID    string           `gorm:"type:text;not null;index:idx_notification_queue_user" json:"user_id"`
	Email     string           `gorm:"type:text;not null" json:"email"`
	Name      string           `gorm:"type:text" json:"name,omitempty"`
	Kind      NotificationKind `gorm:"type:text;not null" json:"kind"`
	ExamIDs   StringArray      `gorm:"type:text" json:"exam_ids"`
	Status    QueueStatus      `gorm:"type:text;index:idx_notification_queue_status_created,priority:1;default:pending" json:"status"`
	Attempts  int              `gorm:"default:0" json:"attempts"`
	LastError string           `gorm:"type:text" json:"last_error,omitempty"`
	SentAt    *time.Time       `json:"sent_at,omitempty"`
	CreatedAt time.Time        `gorm:"index:idx_notification_queue_status_created,priority:2" json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// TableName returns the database table name for NotificationQueueEntry.
func (NotificationQueueEntry) TableName() string {
	return "notification_queue"
}

// NotificationLog records that a user was told about an exam for a kind.
// The (user, exam, kind) triple is unique, which makes delivery logging
// idempotent across retries.
type NotificationLog struct {
	ID      string           `gorm:"type:text;primaryKey" json:"id"`
	UserID  string           `gorm:"type:text;not null;uniqueIndex:idx_notification_logs_user_exam_kind" json:"user_id"`
	ExamID  string           `gorm:"type:text;not null;uniqueIndex:idx_notification_logs_user_exam_kind" json:"exam_id"`
	Kind    NotificationKind `gorm:"type:text;not null;uniqueIndex:idx_notification_logs_user_exam_kind" json:"kind"`
	QueueID string           `gorm:"type:text" json:"queue_id"`
	SentAt  time.Time        `json:"sent_at"`
}

// TableName returns the database table name for NotificationLog.
func (NotificationLog) TableName() string {
	return "notification_logs"
}

// LockRecord is the database-backed mutual exclusion token. At most one
// non-expired holder exists per Name.
type LockRecord struct {
	Name      string    `gorm:"type:text;primaryKey" json:"name"`
	Holder    string    `gorm:"type:text;not null" json:"holder"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
}

// TableName returns the database table name for LockRecord.
func (LockRecord) TableName() string {
	return "dispatch_locks"
}
