package handler

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/medgrid/scanflow/internal/domain"
	"github.com/medgrid/scanflow/internal/service"
)

// FileHandler serves cataloged artifacts by id.
type FileHandler struct {
	orchestrator *service.Orchestrator
}

// NewFileHandler creates a new file handler.
func NewFileHandler(orchestrator *service.Orchestrator) *FileHandler {
	return &FileHandler{orchestrator: orchestrator}
}

// Serve handles GET /files/serve/:file_id/. Streams the file with inferred
// content type; 404 when the entry, the on-disk file, or a single servable
// path (bundles have none) is missing.
func (h *FileHandler) Serve(c *gin.Context) {
	entry, err := h.orchestrator.GetArtifact(c.Request.Context(), c.Param("file_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if entry.IsBundle() {
		respondError(c, fmt.Errorf("artifact %s is a multi-file bundle: %w", entry.ID, domain.ErrNotFound))
		return
	}
	if _, err := os.Stat(entry.FilePath); err != nil {
		respondError(c, fmt.Errorf("artifact file missing on disk: %w", domain.ErrNotFound))
		return
	}
	c.File(entry.FilePath)
}
