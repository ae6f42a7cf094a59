package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/medgrid/scanflow/internal/domain"
	"gorm.io/gorm"
)

// PatientRepository handles subject record persistence.
type PatientRepository struct {
	db *gorm.DB
}

// NewPatientRepository creates a new PatientRepository.
func NewPatientRepository(db *gorm.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// Create inserts a new patient record.
func (r *PatientRepository) Create(ctx context.Context, p *domain.Patient) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetByID retrieves a patient by id.
// Returns domain.ErrNotFound for unknown ids.
func (r *PatientRepository) GetByID(ctx context.Context, id string) (*domain.Patient, error) {
	var p domain.Patient
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("patient %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// Save persists all mutated fields of an existing patient.
func (r *PatientRepository) Save(ctx context.Context, p *domain.Patient) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// SetCBCTStatus updates the volumetric processing status field.
func (r *PatientRepository) SetCBCTStatus(ctx context.Context, id string, status domain.ScanStatus) error {
	return r.db.WithContext(ctx).
		Model(&domain.Patient{}).
		Where("id = ?", id).
		Update("cbct_status", status).Error
}

// SetIOSStatus updates the surface-scan processing status field.
func (r *PatientRepository) SetIOSStatus(ctx context.Context, id string, status domain.ScanStatus) error {
	return r.db.WithContext(ctx).
		Model(&domain.Patient{}).
		Where("id = ?", id).
		Update("ios_status", status).Error
}

// DeleteCascade removes a patient together with everything it owns: jobs and
// their dependency edges, catalog entries, captures, and classifications.
// This is the only path that ever deletes jobs.
func (r *PatientRepository) DeleteCascade(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := NewRepos(tx)
		if err := repos.Jobs.DeleteByPatient(ctx, id); err != nil {
			return err
		}
		if err := repos.Artifacts.DeleteByPatient(ctx, id); err != nil {
			return err
		}
		if err := tx.Where("patient_id = ?", id).Delete(&domain.Capture{}).Error; err != nil {
			return err
		}
		if err := tx.Where("patient_id = ?", id).Delete(&domain.BiteClassification{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Patient{}, "id = ?", id).Error
	})
}

// CaptureRepository handles capture record persistence.
type CaptureRepository struct {
	db *gorm.DB
}

// NewCaptureRepository creates a new CaptureRepository.
func NewCaptureRepository(db *gorm.DB) *CaptureRepository {
	return &CaptureRepository{db: db}
}

// Create inserts a new capture record.
func (r *CaptureRepository) Create(ctx context.Context, c *domain.Capture) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// GetByID retrieves a capture by id.
// Returns domain.ErrNotFound for unknown ids.
func (r *CaptureRepository) GetByID(ctx context.Context, id string) (*domain.Capture, error) {
	var c domain.Capture
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("capture %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

// Save persists all mutated fields of an existing capture.
func (r *CaptureRepository) Save(ctx context.Context, c *domain.Capture) error {
	return r.db.WithContext(ctx).Save(c).Error
}
