package domain

import "time"

// MultiFileHash is the sentinel stored in SHA256 for catalog entries whose
// metadata map holds a multi-file bundle instead of a single artifact.
const MultiFileHash = "multi-file"

// ArtifactEntry is one row of the artifact catalog: a content-addressed
// record of an output file produced by a completed job.
type ArtifactEntry struct {
	ID string `gorm:"type:text;primaryKey" json:"id"`

	// ArtifactType is the canonical logical type, derived from modality slug,
	// raw/processed flag, and optional subtype (e.g. "ios_processed_upper").
	ArtifactType string `gorm:"type:text;not null;index:idx_artifacts_type" json:"artifact_type"`

	FilePath string `gorm:"type:text;not null;uniqueIndex:idx_artifacts_path" json:"file_path"`
	FileSize int64  `json:"file_size"`
	SHA256   string `gorm:"type:text;index:idx_artifacts_sha256" json:"sha256"`

	PatientID *string `gorm:"type:text;index:idx_artifacts_patient" json:"patient_id,omitempty"`
	CaptureID *string `gorm:"type:text" json:"capture_id,omitempty"`
	JobID     *string `gorm:"type:text;index:idx_artifacts_job" json:"job_id,omitempty"`

	// Metadata holds per-entry extras: image dimensions for single images,
	// the full name->{path,size,sha256} map for multi-file bundles.
	Metadata MetaMap `gorm:"type:text" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for ArtifactEntry.
func (ArtifactEntry) TableName() string {
	return "file_registry"
}

// IsBundle reports whether the entry is a multi-file bundle.
func (e *ArtifactEntry) IsBundle() bool {
	return e.SHA256 == MultiFileHash
}
