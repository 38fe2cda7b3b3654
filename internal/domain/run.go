package domain

import "time"

// RunStatus represents the outcome of one change-detection pass for a source.
type RunStatus string

const (
	RunStatusChanged   RunStatus = "changed"
	RunStatusUnchanged RunStatus = "unchanged"
	// RunStatusPartial means links were enumerated but some could not be
	// stored; the fingerprint is withheld so the next pass retries the page.
	RunStatusPartial RunStatus = "partial"
	RunStatusBlocked RunStatus = "blocked"
	RunStatusTimeout RunStatus = "timeout"
	RunStatusError   RunStatus = "error"
)

// RunRecord is one append-only row per source per detection pass.
// The newest non-null Fingerprint for a source is its last known state.
type RunRecord struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	SourceID     string    `gorm:"type:text;not null;index:idx_run_records_source_created,priority:1" json:"source_id"`
	Status       RunStatus `gorm:"type:text;not null" json:"status"`
	Fingerprint  *string   `gorm:"type:text" json:"fingerprint,omitempty"`
	HTTPStatus   int       `json:"http_status"`
	DurationMs   int64     `json:"duration_ms"`
	NewDocuments int       `gorm:"default:0" json:"new_documents"`
	ErrorDetail  string    `gorm:"type:text" json:"error_detail,omitempty"`
	CreatedAt    time.Time `gorm:"index:idx_run_records_source_created,priority:2" json:"created_at"`
}

// TableName returns the database table name for RunRecord.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (RunRecord) TableName() string {
	return "run_records"
}
