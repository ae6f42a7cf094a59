package domain

import "time"

// ScanStatus tracks per-modality processing state on the patient record.
type ScanStatus string

const (
	ScanStatusNone      ScanStatus = ""
	ScanStatusProcessed ScanStatus = "processed"
	ScanStatusFailed    ScanStatus = "failed"
)

// Patient is the subject record that owns scans, jobs, and derived results.
// Only the fields the orchestration core touches live here; demographics and
// clinical data belong to the upstream system.
type Patient struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	ExternalRef string     `gorm:"type:text;index:idx_patients_external_ref" json:"external_ref,omitempty"`
	CBCTStatus  ScanStatus `gorm:"type:text" json:"cbct_status,omitempty"`
	IOSStatus   ScanStatus `gorm:"type:text" json:"ios_status,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Patient.
func (Patient) TableName() string {
	return "patients"
}

// Capture is a standalone recording session (audio today) that a job may
// reference instead of a patient.
type Capture struct {
	ID        string  `gorm:"type:text;primaryKey" json:"id"`
	PatientID *string `gorm:"type:text;index:idx_captures_patient" json:"patient_id,omitempty"`

	// AutoTranscript is the first machine transcription, written once.
	// Transcript starts as a copy of it and absorbs later edits.
	AutoTranscript string `gorm:"type:text" json:"auto_transcript,omitempty"`
	Transcript     string `gorm:"type:text" json:"transcript,omitempty"`

	RecordedAt *time.Time `json:"recorded_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Capture.
func (Capture) TableName() string {
	return "captures"
}

// BiteClassification is the structured result of the classification pipeline,
// one row per (patient, source) pair.
type BiteClassification struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	PatientID string    `gorm:"type:text;not null;index:idx_bite_patient_source,unique" json:"patient_id"`
	Source    string    `gorm:"type:text;not null;index:idx_bite_patient_source,unique" json:"source"`
	Result    MetaMap   `gorm:"type:text" json:"result"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for BiteClassification.
func (BiteClassification) TableName() string {
	return "bite_classifications"
}

// ClassificationSourcePipeline marks classifications produced by the
// processing pipeline, as opposed to manual entry.
const ClassificationSourcePipeline = "pipeline"
