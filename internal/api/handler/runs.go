package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mkaplan/postloom/internal/domain"
	"github.com/mkaplan/postloom/internal/repository"
	"gorm.io/gorm"
)

// RunHandler handles generation run endpoints.
type RunHandler struct {
	runs *repository.RunRepository
	jobs *repository.JobRepository
}

// NewRunHandler creates a new run handler.
// Parameters:
//   - runs: run repository instance.
//   - jobs: job repository instance.
// Returns:
//   - *RunHandler: initialized handler.
func NewRunHandler(runs *repository.RunRepository, jobs *repository.JobRepository) *RunHandler {
	return &RunHandler{runs: runs, jobs: jobs}
}

// GenerateWeekRequest is the body for POST /api/v1/projects/:id/generate.
type GenerateWeekRequest struct {
	OrgID         string `json:"org_id" binding:"required"`
	WeekStartDate string `json:"week_start_date" binding:"required"` // YYYY-MM-DD
	PostsPerWeek  int    `json:"posts_per_week,omitempty"`
}

// GenerateWeek handles POST /api/v1/projects/:id/generate: accepts the
// request, creates a pending run, and enqueues the generate_week job. The
// run is the user-visible handle; the job is internal plumbing.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *RunHandler) GenerateWeek(c *gin.Context) {
	projectID := c.Param("id")

	var req GenerateWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	if _, err := time.Parse("2006-01-02", req.WeekStartDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "week_start_date must be YYYY-MM-DD",
		})
		return
	}

	ctx := c.Request.Context()
	run, err := h.runs.Create(ctx, projectID, domain.RunTypeWeek)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Create run failed: " + err.Error(),
		})
		return
	}

	payload := domain.GenerateWeekPayload{
		WeekStartDate:   req.WeekStartDate,
		GenerationRunID: run.ID,
		PostsPerWeek:    req.PostsPerWeek,
	}
	job, err := h.jobs.Enqueue(ctx, req.OrgID, projectID, domain.JobTypeGenerateWeek, payload, time.Time{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Enqueue failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": run.ID,
		"job_id": job.ID,
		"status": run.Status,
	})
}

// GetRun handles GET /api/v1/runs/:id. Only the run's status and error are
// exposed; job internals like lock tokens stay private.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *RunHandler) GetRun(c *gin.Context) {
	run, err := h.runs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Lookup failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, run)
}
