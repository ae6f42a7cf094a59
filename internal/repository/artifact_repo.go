package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/medgrid/scanflow/internal/domain"
	"gorm.io/gorm"
)

// ArtifactRepository handles artifact catalog persistence.
type ArtifactRepository struct {
	db *gorm.DB
}

// NewArtifactRepository creates a new ArtifactRepository.
func NewArtifactRepository(db *gorm.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Create inserts a new catalog entry.
func (r *ArtifactRepository) Create(ctx context.Context, entry *domain.ArtifactEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// GetByID retrieves a catalog entry by id.
// Returns domain.ErrNotFound for unknown ids.
func (r *ArtifactRepository) GetByID(ctx context.Context, id string) (*domain.ArtifactEntry, error) {
	var entry domain.ArtifactEntry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("artifact %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &entry, nil
}

// GetByPath retrieves a catalog entry by its unique file path. A nil entry
// with nil error means no entry exists at that path.
func (r *ArtifactRepository) GetByPath(ctx context.Context, path string) (*domain.ArtifactEntry, error) {
	var entry domain.ArtifactEntry
	err := r.db.WithContext(ctx).First(&entry, "file_path = ?", path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByJob retrieves all catalog entries produced by a job.
func (r *ArtifactRepository) ListByJob(ctx context.Context, jobID string) ([]domain.ArtifactEntry, error) {
	var entries []domain.ArtifactEntry
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByPatientAndType retrieves entries for a patient with a given artifact type.
func (r *ArtifactRepository) ListByPatientAndType(ctx context.Context, patientID, artifactType string) ([]domain.ArtifactEntry, error) {
	var entries []domain.ArtifactEntry
	if err := r.db.WithContext(ctx).
		Where("patient_id = ? AND artifact_type = ?", patientID, artifactType).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteByPatientAndType removes all entries for a patient with a given
// artifact type. Used to supersede prior processed bundles.
func (r *ArtifactRepository) DeleteByPatientAndType(ctx context.Context, patientID, artifactType string) error {
	return r.db.WithContext(ctx).
		Where("patient_id = ? AND artifact_type = ?", patientID, artifactType).
		Delete(&domain.ArtifactEntry{}).Error
}

// DeleteByID removes one entry.
func (r *ArtifactRepository) DeleteByID(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.ArtifactEntry{}, "id = ?", id).Error
}

// DeleteByPatient removes every entry linked to a patient. Part of the
// subject cascade.
func (r *ArtifactRepository) DeleteByPatient(ctx context.Context, patientID string) error {
	return r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Delete(&domain.ArtifactEntry{}).Error
}
