package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medgrid/scanflow/internal/config"
	"github.com/medgrid/scanflow/internal/domain"
	"github.com/medgrid/scanflow/internal/logger"
	"github.com/medgrid/scanflow/internal/notify"
	"github.com/medgrid/scanflow/internal/repository"
	"github.com/medgrid/scanflow/internal/storage"
	"gorm.io/gorm"
)

// Orchestrator is the coordination core behind the worker protocol: it owns
// job creation, the claim/complete/fail transitions, and the propagation to
// dependents. It is purely reactive; every transition is caused by an
// inbound call, never a timer. Complete and fail each run as one database
// transaction so a crash never leaves a completed job with partial catalog
// writes.
type Orchestrator struct {
	db         *gorm.DB
	cache      *ModalityCache
	dispatcher *Dispatcher
	archiver   storage.ArchiveStore
	notifier   *notify.Webhook
	queue      config.QueueConfig
}

// NewOrchestrator wires the orchestration core. archiver and notifier may be
// nil to disable archival and webhooks.
func NewOrchestrator(db *gorm.DB, cache *ModalityCache, dispatcher *Dispatcher, archiver storage.ArchiveStore, notifier *notify.Webhook, queue config.QueueConfig) *Orchestrator {
	if queue.BatchSize <= 0 {
		queue.BatchSize = 10
	}
	if queue.DefaultMaxRetries <= 0 {
		queue.DefaultMaxRetries = 3
	}
	return &Orchestrator{
		db:         db,
		cache:      cache,
		dispatcher: dispatcher,
		archiver:   archiver,
		notifier:   notifier,
		queue:      queue,
	}
}

// CreateJobRequest is the ingestion-boundary contract: external collaborators
// only ever create jobs with optional dependency links; they never mutate
// status directly.
type CreateJobRequest struct {
	Modality      string   `json:"modality"`
	Priority      int      `json:"priority"`
	PatientID     *string  `json:"patient_id,omitempty"`
	CaptureID     *string  `json:"capture_id,omitempty"`
	InputPath     string   `json:"input_path"`
	InputFromDeps bool     `json:"input_from_deps"`
	DependsOn     []string `json:"depends_on,omitempty"`
	MaxRetries    int      `json:"max_retries"`
}

// CreateJob validates the request and inserts a job whose initial status is
// pending when its dependency set is empty or already satisfied, blocked
// otherwise.
func (o *Orchestrator) CreateJob(ctx context.Context, req *CreateJobRequest) (*domain.Job, error) {
	if req.Modality == "" {
		return nil, fmt.Errorf("modality is required: %w", domain.ErrValidation)
	}
	if _, err := o.cache.Get(ctx, req.Modality); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("unknown modality %q: %w", req.Modality, domain.ErrValidation)
		}
		return nil, err
	}
	if req.PatientID != nil && req.CaptureID != nil {
		return nil, fmt.Errorf("patient_id and capture_id are mutually exclusive: %w", domain.ErrValidation)
	}

	dependsOn := dedupe(req.DependsOn)
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = o.queue.DefaultMaxRetries
	}

	job := &domain.Job{
		ID:            uuid.New().String(),
		Modality:      req.Modality,
		Priority:      req.Priority,
		PatientID:     req.PatientID,
		CaptureID:     req.CaptureID,
		InputPath:     req.InputPath,
		InputFromDeps: req.InputFromDeps,
		MaxRetries:    maxRetries,
		DependsOn:     dependsOn,
	}

	err := o.db.Transaction(func(tx *gorm.DB) error {
		repos := repository.NewRepos(tx)
		for _, depID := range dependsOn {
			if depID == job.ID {
				return fmt.Errorf("job cannot depend on itself: %w", domain.ErrValidation)
			}
			if _, err := repos.Jobs.GetByID(ctx, depID); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("unknown dependency %s: %w", depID, domain.ErrValidation)
				}
				return err
			}
		}

		resolver := NewResolver(repos)
		satisfied, err := resolver.DependenciesSatisfied(ctx, job)
		if err != nil {
			return err
		}
		if satisfied {
			job.Status = domain.JobStatusPending
			if job.InputFromDeps && len(dependsOn) > 0 {
				if err := resolver.resolveInput(ctx, job); err != nil {
					return err
				}
			}
		} else {
			job.Status = domain.JobStatusBlocked
		}
		return repos.Jobs.Create(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldJobID:    job.ID,
		logger.FieldModality: job.Modality,
	}).Info(ctx, "Job created with status %s", job.Status)
	return job, nil
}

// ListReady returns up to the configured batch of claimable jobs for a
// modality, priority descending then FIFO. The listing is advisory; only the
// conditional claim grants exclusivity.
func (o *Orchestrator) ListReady(ctx context.Context, modality string) ([]domain.Job, error) {
	if _, err := o.cache.Get(ctx, modality); err != nil {
		return nil, err
	}
	repos := repository.NewRepos(o.db)
	return repos.Jobs.GetReadyJobs(ctx, modality, o.queue.BatchSize)
}

// Claim atomically hands a pending or retrying job to a worker.
func (o *Orchestrator) Claim(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	if workerID == "" {
		return nil, fmt.Errorf("worker_id is required: %w", domain.ErrValidation)
	}
	repos := repository.NewRepos(o.db)
	job, err := repos.Jobs.Claim(ctx, jobID, workerID)
	if err != nil {
		return nil, err
	}
	logger.With(logger.Fields{
		logger.FieldJobID:    job.ID,
		logger.FieldWorkerID: workerID,
	}).Info(ctx, "Job claimed")
	return job, nil
}

// Complete finishes a processing job: catalogs its outputs, runs the
// modality handler, marks it completed, and reconciles every dependent — all
// in one transaction. Promised outputs missing on disk are skipped; the job
// still completes.
func (o *Orchestrator) Complete(ctx context.Context, jobID string, outputs map[string]string, logs string) (*domain.Job, error) {
	var out *domain.Job
	err := o.db.Transaction(func(tx *gorm.DB) error {
		repos := repository.NewRepos(tx)
		job, err := repos.Jobs.GetByID(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobStatusProcessing {
			return fmt.Errorf("cannot complete job in status %s: %w", job.Status, domain.ErrValidation)
		}

		mod, err := o.cache.Get(ctx, job.Modality)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		registrar := NewRegistrar(repos, o.archiver)
		entries, err := registrar.RegisterOutputs(ctx, job, mod, outputs)
		if err != nil {
			return err
		}

		now := time.Now()
		job.Status = domain.JobStatusCompleted
		job.CompletedAt = &now
		job.OutputFiles = domain.StringMap(outputs)
		if err := repos.Jobs.Save(ctx, job); err != nil {
			return err
		}

		handled, err := o.dispatcher.HandleCompletion(ctx, repos, job, &CompletionResult{
			Outputs: outputs,
			Logs:    logs,
			Entries: entries,
		})
		if err != nil {
			return err
		}

		if err := NewResolver(repos).OnDependencyCompleted(ctx, job.ID); err != nil {
			return err
		}

		logger.With(logger.Fields{
			logger.FieldJobID:    job.ID,
			logger.FieldModality: job.Modality,
			logger.FieldCount:    len(entries),
		}).Info(ctx, "Job completed (handler=%v)", handled)
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.emit(out, notify.EventCompleted)
	return out, nil
}

// Fail records a worker-reported failure. Retryable failures below the retry
// limit re-expose the job as retrying (subject to the configured backoff);
// everything else is terminal.
func (o *Orchestrator) Fail(ctx context.Context, jobID, errMsg string, retryable bool) (*domain.Job, error) {
	var out *domain.Job
	err := o.db.Transaction(func(tx *gorm.DB) error {
		repos := repository.NewRepos(tx)
		job, err := repos.Jobs.GetByID(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return fmt.Errorf("cannot fail job in status %s: %w", job.Status, domain.ErrValidation)
		}

		job.ErrorLogs += fmt.Sprintf("[%s] %s\n", time.Now().Format(time.RFC3339), errMsg)

		if retryable && job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = domain.JobStatusRetrying
			job.NextAttemptAt = nil
			if o.queue.RetryBackoff > 0 {
				next := time.Now().Add(o.queue.RetryBackoff)
				job.NextAttemptAt = &next
			}
		} else {
			job.Status = domain.JobStatusFailed
		}
		if err := repos.Jobs.Save(ctx, job); err != nil {
			return err
		}

		if _, err := o.dispatcher.HandleFailure(ctx, repos, job, errMsg); err != nil {
			return err
		}

		logger.With(logger.Fields{
			logger.FieldJobID:  job.ID,
			logger.FieldStatus: string(job.Status),
		}).Warn(ctx, "Job failed (retry %d/%d): %s", job.RetryCount, job.MaxRetries, errMsg)
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Status == domain.JobStatusFailed {
		o.emit(out, notify.EventFailed)
	}
	return out, nil
}

// GetStatus returns the full job record.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*domain.Job, error) {
	repos := repository.NewRepos(o.db)
	return repos.Jobs.GetByID(ctx, jobID)
}

// GetArtifact returns one artifact catalog entry.
func (o *Orchestrator) GetArtifact(ctx context.Context, fileID string) (*domain.ArtifactEntry, error) {
	repos := repository.NewRepos(o.db)
	return repos.Artifacts.GetByID(ctx, fileID)
}

// AddDependency links jobID to dependsOnID and reconciles, rejecting
// self-edges and cycles.
func (o *Orchestrator) AddDependency(ctx context.Context, jobID, dependsOnID string) error {
	return o.db.Transaction(func(tx *gorm.DB) error {
		return NewResolver(repository.NewRepos(tx)).AddDependency(ctx, jobID, dependsOnID)
	})
}

// RemoveDependency unlinks jobID from dependsOnID and reconciles.
func (o *Orchestrator) RemoveDependency(ctx context.Context, jobID, dependsOnID string) error {
	return o.db.Transaction(func(tx *gorm.DB) error {
		return NewResolver(repository.NewRepos(tx)).RemoveDependency(ctx, jobID, dependsOnID)
	})
}

// Modalities returns the modality cache for boundary validation and listing.
func (o *Orchestrator) Modalities() *ModalityCache {
	return o.cache
}

// emit fires the webhook outside the transaction, after commit, so observers
// never see uncommitted state. Best-effort and non-blocking.
func (o *Orchestrator) emit(job *domain.Job, event string) {
	if o.notifier == nil || job == nil {
		return
	}
	go o.notifier.JobEvent(context.Background(), notify.JobEvent{
		Event:    event,
		JobID:    job.ID,
		Modality: job.Modality,
		Status:   string(job.Status),
		WorkerID: job.WorkerID,
		At:       time.Now(),
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
