package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mkaplan/postloom/internal/service"
)

// WorkerHandler exposes one polling pass over HTTP so an external
// scheduler (cron, CI trigger) can drive the queue without a resident
// worker process.
type WorkerHandler struct {
	worker *service.Worker
}

// NewWorkerHandler creates a new worker handler.
// Parameters:
//   - worker: worker instance to tick.
// Returns:
//   - *WorkerHandler: initialized handler.
func NewWorkerHandler(worker *service.Worker) *WorkerHandler {
	return &WorkerHandler{worker: worker}
}

// Tick handles POST /api/v1/worker/tick.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *WorkerHandler) Tick(c *gin.Context) {
	stats, err := h.worker.Tick(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Tick failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
