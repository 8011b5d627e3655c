package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mkaplan/postloom/internal/domain"
	"github.com/mkaplan/postloom/internal/repository"
	"gorm.io/gorm"
)

// JobHandler handles queue endpoints.
type JobHandler struct {
	jobs *repository.JobRepository
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - jobs: job repository instance.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(jobs *repository.JobRepository) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// EnqueueRequest is the body for POST /api/v1/jobs.
type EnqueueRequest struct {
	OrgID     string          `json:"org_id" binding:"required"`
	ProjectID string          `json:"project_id" binding:"required"`
	Type      domain.JobType  `json:"type" binding:"required"`
	Payload   json.RawMessage `json:"payload" binding:"required"`
	RunAt     *time.Time      `json:"run_at,omitempty"`
}

// CreateJob handles POST /api/v1/jobs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	runAt := time.Time{}
	if req.RunAt != nil {
		runAt = *req.RunAt
	}

	// Decode once here so unknown types and malformed payloads are
	// rejected at the API boundary with a 400, not at dispatch time.
	payload, err := domain.DecodeJobPayload(req.Type, req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid payload: " + err.Error(),
		})
		return
	}

	job, err := h.jobs.Enqueue(c.Request.Context(), req.OrgID, req.ProjectID, req.Type, payload, runAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Enqueue failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, job)
}

// GetJob handles GET /api/v1/jobs/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Lookup failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, job)
}
