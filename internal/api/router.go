package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mkaplan/postloom/internal/api/handler"
	"github.com/mkaplan/postloom/internal/api/middleware"
	"github.com/mkaplan/postloom/internal/logger"
	"github.com/mkaplan/postloom/internal/repository"
	"github.com/mkaplan/postloom/internal/service"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	Jobs     *repository.JobRepository
	Runs     *repository.RunRepository
	Calendar *repository.CalendarRepository
	Assets   *repository.AssetRepository
	Pipeline *service.GenerationService
	Worker   *service.Worker
	Log      *logger.Logger
	Mode     string
	CORS     middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *RouterDeps) *gin.Engine {
	// Set Gin mode
	switch deps.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Log))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	jobHandler := handler.NewJobHandler(deps.Jobs)
	runHandler := handler.NewRunHandler(deps.Runs, deps.Jobs)
	calendarHandler := handler.NewCalendarHandler(deps.Calendar, deps.Assets)
	readinessHandler := handler.NewReadinessHandler(deps.Pipeline)
	workerHandler := handler.NewWorkerHandler(deps.Worker)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Jobs
		v1.POST("/jobs", jobHandler.CreateJob)
		v1.GET("/jobs/:id", jobHandler.GetJob)

		// Generation runs
		v1.POST("/projects/:id/generate", runHandler.GenerateWeek)
		v1.GET("/runs/:id", runHandler.GetRun)

		// Calendar
		v1.GET("/weeks/:id/items", calendarHandler.ListWeekItems)

		// Readiness
		v1.GET("/projects/:id/readiness", readinessHandler.GetReadiness)

		// Worker trigger (cron-style external scheduler)
		v1.POST("/worker/tick", workerHandler.Tick)
	}

	return r
}
