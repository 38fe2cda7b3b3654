package domain

import "time"

// Confidence levels reported by the extraction provider.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Exam is one structured exam notification extracted from a document.
// Records are inserted unverified and inactive; matching only considers rows
// where Verified is set.
type Exam struct {
	ID                 string     `gorm:"type:text;primaryKey" json:"id"`
	Title              string     `gorm:"type:text;not null" json:"title"`
	Organization       string     `gorm:"type:text" json:"organization"`
	PostName           string     `gorm:"type:text" json:"post_name,omitempty"`
	AdvertisementNo    string     `gorm:"type:text" json:"advertisement_no,omitempty"`
	Category           string     `gorm:"type:text;index:idx_exams_category" json:"category"`
	Level              string     `gorm:"type:text" json:"level"`
	State              string     `gorm:"type:text" json:"state,omitempty"`
	Qualification      string     `gorm:"type:text" json:"qualification"`
	Vacancies          int        `json:"vacancies"`
	NotificationDate   *time.Time `json:"notification_date,omitempty"`
	ApplicationStart   *time.Time `json:"application_start_date,omitempty"`
	ApplicationEnd     time.Time  `gorm:"not null;index:idx_exams_application_end" json:"application_end_date"`
	ExamDate           *time.Time `json:"exam_date,omitempty"`
	MinAge             int        `json:"min_age"`
	MaxAgeGeneral      int        `json:"max_age_general"`
	MaxAgeOBC          int        `json:"max_age_obc"`
	MaxAgeSCST         int        `json:"max_age_sc_st"`
	MaxAgePwDGeneral   int        `json:"max_age_pwd_general"`
	FeeGeneral         int        `json:"fee_general"`
	FeeReserved        int        `json:"fee_reserved"`
	OfficialURL        string     `gorm:"type:text" json:"official_url,omitempty"`
	SourceID           string     `gorm:"type:text;index:idx_exams_source" json:"source_id"`
	SourceURL          string     `gorm:"type:text" json:"source_url"`
	ContentFingerprint string     `gorm:"type:text;uniqueIndex:idx_exams_fingerprint" json:"content_fingerprint"`
	Confidence         string     `gorm:"type:text" json:"confidence"`
	Provider           string     `gorm:"type:text" json:"provider"`
	Verified           bool       `gorm:"default:false" json:"verified"`
	Active             bool       `gorm:"default:false" json:"active"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Exam.
func (Exam) TableName() string {
	return "exams"
}
