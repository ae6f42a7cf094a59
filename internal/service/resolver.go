package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/medgrid/scanflow/internal/domain"
	"github.com/medgrid/scanflow/internal/logger"
	"github.com/medgrid/scanflow/internal/repository"
)

// Resolver computes job readiness from the dependency DAG and moves jobs
// between blocked and pending. It never reorders ready jobs; ordering is
// defined entirely by the job store's ready query.
type Resolver struct {
	repos *repository.Repos
}

// NewResolver creates a Resolver bound to a repository bundle. Bind the
// bundle to a transaction handle to make propagation atomic with the
// triggering status change.
func NewResolver(repos *repository.Repos) *Resolver {
	return &Resolver{repos: repos}
}

// DependenciesSatisfied reports whether the job's dependency set is empty or
// every dependency has reached completed. A dangling dependency id counts as
// unsatisfied.
func (r *Resolver) DependenciesSatisfied(ctx context.Context, job *domain.Job) (bool, error) {
	if len(job.DependsOn) == 0 {
		return true, nil
	}
	deps, err := r.repos.Jobs.GetByIDs(ctx, job.DependsOn)
	if err != nil {
		return false, err
	}
	if len(deps) != len(job.DependsOn) {
		return false, nil
	}
	for i := range deps {
		if deps[i].Status != domain.JobStatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

// Reconcile moves a job between blocked and pending according to its current
// dependency satisfaction and reports whether a transition happened. It is
// idempotent: a second call without an intervening change is a no-op. The
// blocked-to-pending transition also resolves late-bound inputs.
func (r *Resolver) Reconcile(ctx context.Context, job *domain.Job) (bool, error) {
	satisfied, err := r.DependenciesSatisfied(ctx, job)
	if err != nil {
		return false, err
	}

	switch {
	case job.Status == domain.JobStatusBlocked && satisfied:
		job.Status = domain.JobStatusPending
		if job.InputFromDeps {
			if err := r.resolveInput(ctx, job); err != nil {
				return false, err
			}
		}
	case job.Status == domain.JobStatusPending && !satisfied:
		job.Status = domain.JobStatusBlocked
	default:
		return false, nil
	}

	if err := r.repos.Jobs.Save(ctx, job); err != nil {
		return false, err
	}
	logger.CtxInfo(ctx, "Job %s reconciled to %s", job.ID, job.Status)
	return true, nil
}

// OnDependencyCompleted reconciles every job whose dependency set includes
// the completed job.
func (r *Resolver) OnDependencyCompleted(ctx context.Context, jobID string) error {
	dependents, err := r.repos.Jobs.Dependents(ctx, jobID)
	if err != nil {
		return err
	}
	for i := range dependents {
		dep := dependents[i]
		deps, err := r.repos.Jobs.DependencyIDs(ctx, dep.ID)
		if err != nil {
			return err
		}
		dep.DependsOn = deps
		if _, err := r.Reconcile(ctx, &dep); err != nil {
			return err
		}
	}
	return nil
}

// AddDependency inserts an edge and reconciles the affected job. Self-edges
// and cycle-creating edges are rejected: a cycle would leave every involved
// job blocked forever.
func (r *Resolver) AddDependency(ctx context.Context, jobID, dependsOnID string) error {
	if jobID == dependsOnID {
		return fmt.Errorf("job cannot depend on itself: %w", domain.ErrValidation)
	}
	job, err := r.repos.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("cannot add dependency to %s job: %w", job.Status, domain.ErrValidation)
	}
	for _, id := range job.DependsOn {
		if id == dependsOnID {
			return nil
		}
	}
	if _, err := r.repos.Jobs.GetByID(ctx, dependsOnID); err != nil {
		return err
	}
	reachable, err := r.repos.Jobs.HasDependencyPath(ctx, dependsOnID, jobID)
	if err != nil {
		return err
	}
	if reachable {
		return fmt.Errorf("edge %s -> %s: %w", jobID, dependsOnID, domain.ErrDependencyCycle)
	}
	if err := r.repos.Jobs.AddEdge(ctx, jobID, dependsOnID); err != nil {
		return err
	}
	job.DependsOn = append(job.DependsOn, dependsOnID)
	_, err = r.Reconcile(ctx, job)
	return err
}

// RemoveDependency deletes an edge and reconciles the affected job.
func (r *Resolver) RemoveDependency(ctx context.Context, jobID, dependsOnID string) error {
	job, err := r.repos.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if err := r.repos.Jobs.RemoveEdge(ctx, jobID, dependsOnID); err != nil {
		return err
	}
	kept := job.DependsOn[:0]
	for _, id := range job.DependsOn {
		if id != dependsOnID {
			kept = append(kept, id)
		}
	}
	job.DependsOn = kept
	_, err = r.Reconcile(ctx, job)
	return err
}

// resolveInput rewrites the job's input locator to the JSON-encoded merged
// output map of its dependencies. Evaluated once, at the moment the job
// becomes pending, so workers always see the final dependency outputs.
func (r *Resolver) resolveInput(ctx context.Context, job *domain.Job) error {
	deps, err := r.repos.Jobs.GetByIDs(ctx, job.DependsOn)
	if err != nil {
		return err
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].CreatedAt.Before(deps[j].CreatedAt) })

	merged := map[string]string{}
	for i := range deps {
		for name, path := range deps[i].OutputFiles {
			merged[name] = path
		}
	}
	if len(merged) == 0 {
		return nil
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	job.InputPath = string(encoded)
	return nil
}
