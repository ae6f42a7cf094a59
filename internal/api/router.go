package api

import (
	"github.com/gin-gonic/gin"
	"github.com/medgrid/scanflow/internal/api/handler"
	"github.com/medgrid/scanflow/internal/api/middleware"
	"github.com/medgrid/scanflow/internal/service"
)

// SetupRouter configures the Gin router with the worker protocol and file
// serving routes.
func SetupRouter(
	orchestrator *service.Orchestrator,
	mode string,
	cors middleware.CORSConfig,
) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cors))

	healthHandler := handler.NewHealthHandler()
	jobHandler := handler.NewJobHandler(orchestrator)
	fileHandler := handler.NewFileHandler(orchestrator)

	r.GET("/health", healthHandler.Health)

	jobs := r.Group("/jobs")
	{
		jobs.POST("/", jobHandler.Create)
		jobs.GET("/pending/:modality/", jobHandler.ListPending)
		jobs.POST("/:id/processing/", jobHandler.Claim)
		jobs.POST("/:id/completed/", jobHandler.Complete)
		jobs.POST("/:id/failed/", jobHandler.Fail)
		jobs.GET("/:id/status/", jobHandler.Status)
	}

	files := r.Group("/files")
	{
		files.GET("/serve/:file_id/", fileHandler.Serve)
	}

	return r
}
