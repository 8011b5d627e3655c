package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mkaplan/postloom/internal/service"
)

// ReadinessHandler handles the training-readiness report endpoint.
type ReadinessHandler struct {
	pipeline *service.GenerationService
}

// NewReadinessHandler creates a new readiness handler.
// Parameters:
//   - pipeline: generation service instance.
// Returns:
//   - *ReadinessHandler: initialized handler.
func NewReadinessHandler(pipeline *service.GenerationService) *ReadinessHandler {
	return &ReadinessHandler{pipeline: pipeline}
}

// GetReadiness handles GET /api/v1/projects/:id/readiness.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ReadinessHandler) GetReadiness(c *gin.Context) {
	stats, err := h.pipeline.Readiness(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Readiness query failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id": c.Param("id"),
		"readiness":  stats,
	})
}
