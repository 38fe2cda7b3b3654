package domain

import "time"

// LedgerEntry records one distinct document ever seen, keyed by the SHA-256
// of its raw bytes. Rows are never deleted, even after the stored bytes are
// purged, so byte-identical content is never processed twice.
type LedgerEntry struct {
	Fingerprint string     `gorm:"type:text;primaryKey" json:"fingerprint"`
	SourceURL   string     `gorm:"type:text;not null" json:"source_url"`
	SourceID    string     `gorm:"type:text;not null;index:idx_document_ledger_source" json:"source_id"`
	StorageKey  string     `gorm:"type:text;not null" json:"storage_key"`
	FileSize    int64      `json:"file_size"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Outcome     string     `gorm:"type:text" json:"outcome,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TableName returns the database table name for LedgerEntry.
func (LedgerEntry) TableName() string {
	return "document_ledger"
}

// EventStatus represents the processing status of an ingestion event.
// Values include EventStatusQueued, EventStatusProcessing, EventStatusDone,
// EventStatusFailed, and EventStatusSkipped.
type EventStatus string

const (
	EventStatusQueued     EventStatus = "queued"
	EventStatusProcessing EventStatus = "processing"
	EventStatusDone       EventStatus = "done"
	EventStatusFailed     EventStatus = "failed"
	EventStatusSkipped    EventStatus = "skipped"
)

// IngestionEvent is the durable handoff record for one newly discovered
// document. Its ID is the idempotency key of the extraction pipeline.
type IngestionEvent struct {
	ID          string      `gorm:"type:text;primaryKey" json:"id"`
	SourceID    string      `gorm:"type:text;not null;index:idx_ingestion_events_source" json:"source_id"`
	SourceName  string      `gorm:"type:text" json:"source_name"`
	Category    string      `gorm:"type:text" json:"category"`
	State       string      `gorm:"type:text" json:"state,omitempty"`
	SourceURL   string      `gorm:"type:text;not null" json:"source_url"`
	Fingerprint string      `gorm:"type:text;not null;index:idx_ingestion_events_fingerprint" json:"content_fingerprint"`
	StorageKey  string      `gorm:"type:text;not null" json:"storage_path"`
	AnchorText  string      `gorm:"type:text" json:"anchor_text,omitempty"`
	Context     string      `gorm:"type:text" json:"context,omitempty"`
	Status      EventStatus `gorm:"type:text;index:idx_ingestion_events_status;default:queued" json:"status"`
	ErrorDetail string      `gorm:"type:text" json:"error_detail,omitempty"`
	Provider    string      `gorm:"type:text" json:"provider,omitempty"`
	Confidence  string      `gorm:"type:text" json:"confidence,omitempty"`
	ExamID      string      `gorm:"type:text" json:"exam_id,omitempty"`
	ScrapedAt   time.Time   `json:"scraped_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName returns the database table name for IngestionEvent.
func (IngestionEvent) TableName() string {
	return "ingestion_events"
}
