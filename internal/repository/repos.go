package repository

import "gorm.io/gorm"

// Repos bundles every repository bound to one database handle. Constructing
// a bundle on a transaction handle makes complete/fail a single atomic
// read-modify-write across jobs, catalog entries, and subject records.
type Repos struct {
	Jobs            *JobRepository
	Artifacts       *ArtifactRepository
	Modalities      *ModalityRepository
	Patients        *PatientRepository
	Captures        *CaptureRepository
	Classifications *ClassificationRepository
}

// NewRepos creates a repository bundle bound to db (or a transaction handle).
func NewRepos(db *gorm.DB) *Repos {
	return &Repos{
		Jobs:            NewJobRepository(db),
		Artifacts:       NewArtifactRepository(db),
		Modalities:      NewModalityRepository(db),
		Patients:        NewPatientRepository(db),
		Captures:        NewCaptureRepository(db),
		Classifications: NewClassificationRepository(db),
	}
}
