package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medgrid/scanflow/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles job and dependency-edge persistence.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job together with its dependency edges.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist; DependsOn is written to the edge table.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return err
	}
	for _, depID := range job.DependsOn {
		edge := domain.JobDependency{JobID: job.ID, DependsOnID: depID}
		if err := r.db.WithContext(ctx).Create(&edge).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves a job by id, including its dependency ids.
// Returns domain.ErrNotFound for unknown ids.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	deps, err := r.DependencyIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	job.DependsOn = deps
	return &job, nil
}

// GetByIDs retrieves multiple jobs by id, without dependency ids.
func (r *JobRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Job, error) {
	if len(ids) == 0 {
		return []domain.Job{}, nil
	}
	var jobs []domain.Job
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetReadyJobs returns claimable jobs for a modality: status pending or
// retrying, past any retry backoff, ordered by priority descending then
// creation time ascending (FIFO tie-break), capped at limit.
func (r *JobRepository) GetReadyJobs(ctx context.Context, modality string, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	if err := r.db.WithContext(ctx).
		Where("modality = ?", modality).
		Where("status IN ?", []domain.JobStatus{domain.JobStatusPending, domain.JobStatusRetrying}).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", time.Now()).
		Order("priority DESC").
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Claim atomically transitions a pending or retrying job to processing and
// records the claiming worker and start time. The conditional update keyed on
// prior status guarantees at most one winner between concurrent pollers.
// Returns domain.ErrClaimConflict when the job exists but was already taken,
// domain.ErrNotFound for unknown ids.
func (r *JobRepository) Claim(ctx context.Context, id, workerID string) (*domain.Job, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ?", id).
		Where("status IN ?", []domain.JobStatus{domain.JobStatusPending, domain.JobStatusRetrying}).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusProcessing,
			"worker_id":  workerID,
			"started_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&domain.Job{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrClaimConflict)
	}
	return r.GetByID(ctx, id)
}

// Save persists all mutated fields of an existing job.
func (r *JobRepository) Save(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// DependencyIDs returns the ids this job depends on.
func (r *JobRepository) DependencyIDs(ctx context.Context, jobID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&domain.JobDependency{}).
		Where("job_id = ?", jobID).
		Pluck("depends_on_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Dependents returns every job whose dependency set includes jobID.
func (r *JobRepository) Dependents(ctx context.Context, jobID string) ([]domain.Job, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&domain.JobDependency{}).
		Where("depends_on_id = ?", jobID).
		Pluck("job_id", &ids).Error; err != nil {
		return nil, err
	}
	return r.GetByIDs(ctx, ids)
}

// AddEdge inserts one dependency edge.
func (r *JobRepository) AddEdge(ctx context.Context, jobID, dependsOnID string) error {
	edge := domain.JobDependency{JobID: jobID, DependsOnID: dependsOnID}
	return r.db.WithContext(ctx).Create(&edge).Error
}

// RemoveEdge deletes one dependency edge. Removing an absent edge is a no-op.
func (r *JobRepository) RemoveEdge(ctx context.Context, jobID, dependsOnID string) error {
	return r.db.WithContext(ctx).
		Where("job_id = ? AND depends_on_id = ?", jobID, dependsOnID).
		Delete(&domain.JobDependency{}).Error
}

// HasDependencyPath reports whether toID is reachable from fromID by
// following depends-on edges. Used to reject cycle-creating edges: adding
// "job depends on dep" is illegal when job is reachable from dep.
func (r *JobRepository) HasDependencyPath(ctx context.Context, fromID, toID string) (bool, error) {
	if fromID == toID {
		return true, nil
	}
	visited := map[string]bool{fromID: true}
	frontier := []string{fromID}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		next, err := r.DependencyIDs(ctx, current)
		if err != nil {
			return false, err
		}
		for _, id := range next {
			if id == toID {
				return true, nil
			}
			if !visited[id] {
				visited[id] = true
				frontier = append(frontier, id)
			}
		}
	}
	return false, nil
}

// DeleteByPatient removes all jobs owned by a patient together with any
// dependency edges touching them. Only the cascading deletion of the owning
// subject ever removes jobs.
func (r *JobRepository) DeleteByPatient(ctx context.Context, patientID string) error {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("patient_id = ?", patientID).
		Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Where("job_id IN ? OR depends_on_id IN ?", ids, ids).
		Delete(&domain.JobDependency{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.Job{}).Error
}
