package domain

import "time"

// JobStatus represents the lifecycle state of a processing job.
// Values include JobStatusBlocked, JobStatusPending, JobStatusProcessing,
// JobStatusCompleted, JobStatusFailed, and JobStatusRetrying.
type JobStatus string

const (
	JobStatusBlocked    JobStatus = "blocked"
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents one unit of asynchronous scan-processing work. Jobs are
// created by the ingestion path, claimed and resolved by external workers
// through the protocol gateway, and gated by a dependency edge set.
type Job struct {
	ID       string    `gorm:"type:text;primaryKey" json:"id"`
	Modality string    `gorm:"type:text;not null;index:idx_jobs_modality" json:"modality"`
	Status   JobStatus `gorm:"type:text;index:idx_jobs_status;default:pending" json:"status"`
	Priority int       `gorm:"default:0" json:"priority"`

	// A job belongs to a patient or to a standalone capture, never both.
	PatientID *string `gorm:"type:text;index:idx_jobs_patient" json:"patient_id,omitempty"`
	CaptureID *string `gorm:"type:text;index:idx_jobs_capture" json:"capture_id,omitempty"`

	// InputPath is a single file path or, for multi-input jobs, a
	// JSON-encoded name->path map.
	InputPath string `gorm:"type:text" json:"input_path"`

	// InputFromDeps marks jobs whose input locator is resolved from the
	// merged output maps of their dependencies once those complete.
	InputFromDeps bool `gorm:"default:false" json:"input_from_deps"`

	OutputFiles StringMap `gorm:"type:text" json:"output_files,omitempty"`

	RetryCount int    `gorm:"default:0" json:"retry_count"`
	MaxRetries int    `gorm:"default:3" json:"max_retries"`
	ErrorLogs  string `gorm:"type:text" json:"error_logs,omitempty"`
	WorkerID   string `gorm:"type:text" json:"worker_id,omitempty"`

	// NextAttemptAt gates re-polling of retrying jobs when a retry backoff
	// is configured. Nil means immediately eligible.
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// DependsOn holds the ids of jobs that must reach completed before this
	// one becomes pending. Loaded from the edge table, not a gorm relation.
	DependsOn []string `gorm:"-" json:"depends_on,omitempty"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// JobDependency is one edge of the dependency DAG: JobID depends on
// DependsOnID. The depends_on index serves the "find dependents" lookup.
type JobDependency struct {
	JobID       string `gorm:"type:text;primaryKey" json:"job_id"`
	DependsOnID string `gorm:"type:text;primaryKey;index:idx_job_deps_depends_on" json:"depends_on_id"`
}

// TableName returns the database table name for JobDependency.
func (JobDependency) TableName() string {
	return "job_dependencies"
}
