package domain

import "time"

// Well-known modality slugs. Adding a modality is a data change plus a
// dispatcher handler registration, not an edit to a central switch.
const (
	ModalityCBCT  = "cbct"
	ModalityIOS   = "ios"
	ModalityAudio = "audio"
	ModalityBite  = "bite_classification"
)

// Modality describes one class of scan data processed by a dedicated worker
// type: its subtypes, accepted file extensions, and whether a single capture
// consists of multiple simultaneous input files.
type Modality struct {
	Slug       string      `gorm:"type:text;primaryKey" json:"slug"`
	Name       string      `gorm:"type:text;not null" json:"name"`
	Subtypes   StringArray `gorm:"type:text" json:"subtypes,omitempty"`
	Extensions StringArray `gorm:"type:text" json:"extensions,omitempty"`
	MultiFile  bool        `gorm:"default:false" json:"multi_file"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Modality.
func (Modality) TableName() string {
	return "modalities"
}
