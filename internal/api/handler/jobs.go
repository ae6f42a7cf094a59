package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/medgrid/scanflow/internal/domain"
	"github.com/medgrid/scanflow/internal/service"
)

// JobHandler exposes the worker polling protocol and the job ingestion
// boundary.
type JobHandler struct {
	orchestrator *service.Orchestrator
}

// NewJobHandler creates a new job handler.
func NewJobHandler(orchestrator *service.Orchestrator) *JobHandler {
	return &JobHandler{orchestrator: orchestrator}
}

// ListPending handles GET /jobs/pending/:modality/. Workers poll this to
// discover claimable jobs; the listing is advisory until a claim succeeds.
func (h *JobHandler) ListPending(c *gin.Context) {
	modality := c.Param("modality")

	jobs, err := h.orchestrator.ListReady(c.Request.Context(), modality)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"jobs":    jobs,
		"count":   len(jobs),
	})
}

type claimRequest struct {
	WorkerID string `json:"worker_id" binding:"required"`
}

// Claim handles POST /jobs/:id/processing/.
func (h *JobHandler) Claim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%v: %w", err, domain.ErrValidation))
		return
	}

	job, err := h.orchestrator.Claim(c.Request.Context(), c.Param("id"), req.WorkerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"job_id":     job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	})
}

type completeRequest struct {
	OutputFiles map[string]string `json:"output_files" binding:"required"`
	Logs        string            `json:"logs"`
}

// Complete handles POST /jobs/:id/completed/.
func (h *JobHandler) Complete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%v: %w", err, domain.ErrValidation))
		return
	}

	job, err := h.orchestrator.Complete(c.Request.Context(), c.Param("id"), req.OutputFiles, req.Logs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"job_id":       job.ID,
		"status":       job.Status,
		"completed_at": job.CompletedAt,
		"output_files": job.OutputFiles,
	})
}

type failRequest struct {
	ErrorMsg string `json:"error_msg" binding:"required"`
	CanRetry bool   `json:"can_retry"`
}

// Fail handles POST /jobs/:id/failed/.
func (h *JobHandler) Fail(c *gin.Context) {
	var req failRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%v: %w", err, domain.ErrValidation))
		return
	}

	job, err := h.orchestrator.Fail(c.Request.Context(), c.Param("id"), req.ErrorMsg, req.CanRetry)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"job_id":      job.ID,
		"status":      job.Status,
		"error_logs":  job.ErrorLogs,
		"retry_count": job.RetryCount,
		"can_retry":   req.CanRetry,
	})
}

// Status handles GET /jobs/:id/status/.
func (h *JobHandler) Status(c *gin.Context) {
	job, err := h.orchestrator.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Create handles POST /jobs/, the ingestion boundary. Collaborators create
// jobs with optional dependency links; they never mutate status directly.
func (h *JobHandler) Create(c *gin.Context) {
	var req service.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%v: %w", err, domain.ErrValidation))
		return
	}

	job, err := h.orchestrator.CreateJob(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"job":     job,
	})
}
