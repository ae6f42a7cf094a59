package service

import (
	"context"

	"github.com/medgrid/scanflow/internal/domain"
	"github.com/medgrid/scanflow/internal/repository"
)

// CompletionResult carries what a finished job produced: the raw output map
// reported by the worker, the worker logs, and the catalog entries the
// registrar created from them.
type CompletionResult struct {
	Outputs map[string]string
	Logs    string
	Entries []domain.ArtifactEntry
}

// CategoryHandler is the per-modality completion/failure hook. Handlers
// receive the repository bundle of the surrounding transaction so their side
// effects commit or roll back with the status change. The handled return
// reports whether the handler did modality-specific work.
type CategoryHandler interface {
	HandleCompletion(ctx context.Context, repos *repository.Repos, job *domain.Job, res *CompletionResult) (bool, error)
	HandleFailure(ctx context.Context, repos *repository.Repos, job *domain.Job, errMsg string) (bool, error)
}

// Dispatcher resolves the handler for a modality slug. Unregistered
// modalities fall through to a no-op: registrar bookkeeping only. Adding a
// modality means registering a handler, not editing a switch.
type Dispatcher struct {
	handlers map[string]CategoryHandler
	fallback CategoryHandler
}

// NewDispatcher creates a Dispatcher with the built-in handlers registered.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		handlers: map[string]CategoryHandler{},
		fallback: noopHandler{},
	}
	d.Register(domain.ModalityCBCT, &cbctHandler{})
	d.Register(domain.ModalityIOS, &iosHandler{})
	d.Register(domain.ModalityAudio, &audioHandler{})
	d.Register(domain.ModalityBite, &biteHandler{})
	return d
}

// Register binds a handler to a modality slug, replacing any previous one.
func (d *Dispatcher) Register(slug string, h CategoryHandler) {
	d.handlers[slug] = h
}

func (d *Dispatcher) handler(slug string) CategoryHandler {
	if h, ok := d.handlers[slug]; ok {
		return h
	}
	return d.fallback
}

// HandleCompletion dispatches a completed job to its modality handler.
func (d *Dispatcher) HandleCompletion(ctx context.Context, repos *repository.Repos, job *domain.Job, res *CompletionResult) (bool, error) {
	return d.handler(job.Modality).HandleCompletion(ctx, repos, job, res)
}

// HandleFailure dispatches a failed or retrying job to its modality handler.
func (d *Dispatcher) HandleFailure(ctx context.Context, repos *repository.Repos, job *domain.Job, errMsg string) (bool, error) {
	return d.handler(job.Modality).HandleFailure(ctx, repos, job, errMsg)
}

// noopHandler is the fallthrough for unregistered modalities.
type noopHandler struct{}

func (noopHandler) HandleCompletion(context.Context, *repository.Repos, *domain.Job, *CompletionResult) (bool, error) {
	return false, nil
}

func (noopHandler) HandleFailure(context.Context, *repository.Repos, *domain.Job, string) (bool, error) {
	return false, nil
}
