package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/medgrid/scanflow/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClassificationRepository handles bite classification persistence.
type ClassificationRepository struct {
	db *gorm.DB
}

// NewClassificationRepository creates a new ClassificationRepository.
func NewClassificationRepository(db *gorm.DB) *ClassificationRepository {
	return &ClassificationRepository{db: db}
}

// Upsert creates or replaces the classification for (patient, source).
// At most one row exists per key; repeated pipeline runs overwrite it.
func (r *ClassificationRepository) Upsert(ctx context.Context, c *domain.BiteClassification) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "patient_id"}, {Name: "source"}},
		DoUpdates: clause.AssignmentColumns([]string{"result", "updated_at"}),
	}).Create(c).Error
}

// GetByPatientAndSource retrieves the classification for (patient, source).
// Returns domain.ErrNotFound when none exists.
func (r *ClassificationRepository) GetByPatientAndSource(ctx context.Context, patientID, source string) (*domain.BiteClassification, error) {
	var c domain.BiteClassification
	if err := r.db.WithContext(ctx).
		First(&c, "patient_id = ? AND source = ?", patientID, source).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("classification %s/%s: %w", patientID, source, domain.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}
