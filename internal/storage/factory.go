package storage

import (
	"fmt"

	"github.com/medgrid/scanflow/internal/config"
)

// NewArchiveStore creates an ArchiveStore from configuration. Returns nil
// (and no error) when archival is disabled.
func NewArchiveStore(cfg *config.ArchiveConfig) (ArchiveStore, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Provider {
	case "", "minio":
		return NewMinIOArchive(cfg)
	case "s3":
		return NewS3Archive(cfg)
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Provider)
	}
}
