package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fablepress/backend/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "up"
		if deps.DBClient != nil {
			if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				dbStatus = "down"
			}
		}
		c.JSON(status, gin.H{
			"status":   "healthy",
			"service":  "personalization-api",
			"database": dbStatus,
		})
	})

	personalizationHandler := handler.NewPersonalizationHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		personalizations := v1.Group("/personalizations")
		{
			// POST /api/v1/personalizations - Submit photo and start analysis
			personalizations.POST("", personalizationHandler.Submit)

			// GET /api/v1/personalizations/:job_id - Poll job state
			personalizations.GET("/:job_id", personalizationHandler.GetStatus)

			// POST /api/v1/personalizations/:job_id/avatar - Replace photo
			personalizations.POST("/:job_id/avatar", personalizationHandler.ReplacePhoto)

			// GET /api/v1/personalizations/:job_id/avatar - Face crop URL
			personalizations.GET("/:job_id/avatar", personalizationHandler.GetAvatar)

			// POST /api/v1/personalizations/:job_id/generate - Start a stage
			personalizations.POST("/:job_id/generate", personalizationHandler.Generate)

			// POST /api/v1/personalizations/:job_id/pages/regenerate - Redo one page
			personalizations.POST("/:job_id/pages/regenerate", personalizationHandler.RegeneratePage)

			// GET /api/v1/personalizations/:job_id/preview - Front-visible pages
			personalizations.GET("/:job_id/preview", personalizationHandler.Preview)

			// GET /api/v1/personalizations/:job_id/artifacts - All stage pages
			personalizations.GET("/:job_id/artifacts", personalizationHandler.Artifacts)
		}
	}

	return r
}
