package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/medgrid/scanflow/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModalityRepository handles modality metadata persistence.
type ModalityRepository struct {
	db *gorm.DB
}

// NewModalityRepository creates a new ModalityRepository.
func NewModalityRepository(db *gorm.DB) *ModalityRepository {
	return &ModalityRepository{db: db}
}

// GetBySlug retrieves a modality by slug.
// Returns domain.ErrNotFound for unknown slugs.
func (r *ModalityRepository) GetBySlug(ctx context.Context, slug string) (*domain.Modality, error) {
	var m domain.Modality
	if err := r.db.WithContext(ctx).First(&m, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("modality %s: %w", slug, domain.ErrNotFound)
		}
		return nil, err
	}
	return &m, nil
}

// List retrieves all modalities.
func (r *ModalityRepository) List(ctx context.Context) ([]domain.Modality, error) {
	var ms []domain.Modality
	if err := r.db.WithContext(ctx).Order("slug ASC").Find(&ms).Error; err != nil {
		return nil, err
	}
	return ms, nil
}

// Upsert creates or updates a modality keyed by slug.
func (r *ModalityRepository) Upsert(ctx context.Context, m *domain.Modality) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		UpdateAll: true,
	}).Create(m).Error
}

// SeedDefaults inserts the built-in modalities if they are missing. Existing
// rows are left untouched so operators can tune them.
func (r *ModalityRepository) SeedDefaults(ctx context.Context) error {
	defaults := []domain.Modality{
		{
			Slug:       domain.ModalityCBCT,
			Name:       "CBCT volumetric scan",
			Extensions: domain.StringArray{".dcm", ".dicom", ".nii", ".nrrd", ".vol", ".zip"},
			MultiFile:  true,
		},
		{
			Slug:       domain.ModalityIOS,
			Name:       "Intraoral surface scan",
			Subtypes:   domain.StringArray{"upper", "lower"},
			Extensions: domain.StringArray{".stl", ".ply", ".obj"},
		},
		{
			Slug:       domain.ModalityAudio,
			Name:       "Consultation audio",
			Extensions: domain.StringArray{".wav", ".mp3", ".m4a", ".ogg"},
		},
		{
			Slug:       domain.ModalityBite,
			Name:       "Bite classification",
			Extensions: domain.StringArray{".json"},
		},
	}
	for i := range defaults {
		if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoNothing: true,
		}).Create(&defaults[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
