package domain

import "errors"

// Sentinel errors surfaced at the gateway boundary. Handlers map them to
// HTTP statuses; everything else is an internal error.
var (
	// ErrNotFound means an unknown job, file, or subject id.
	ErrNotFound = errors.New("not found")

	// ErrValidation means a malformed request body or field.
	ErrValidation = errors.New("validation failed")

	// ErrClaimConflict means another worker won the conditional claim.
	ErrClaimConflict = errors.New("job already claimed")

	// ErrRegistryConflict means an artifact path is already cataloged for an
	// unrelated row and must not be silently overwritten.
	ErrRegistryConflict = errors.New("artifact path already registered")

	// ErrDependencyCycle means an edge would close a cycle in the dependency
	// DAG, which would deadlock every involved job in blocked.
	ErrDependencyCycle = errors.New("dependency cycle")
)
