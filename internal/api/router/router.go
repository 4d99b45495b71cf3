package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KrzysztofW02/ZTP/internal/api/handler"
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
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "sharpen-api-service",
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "sharpen-api-service",
		})
	})

	resultHandler := handler.NewResultHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs/publish - Publish the image folder
			jobs.POST("/publish", jobHandler.PublishJobs)
		}

		results := v1.Group("/results")
		{
			// GET /api/v1/results - List results with filtering and pagination
			results.GET("", resultHandler.ListResults)

			// GET /api/v1/results/summary - Per-backend comparison
			results.GET("/summary", resultHandler.GetSummary)
		}
	}

	return r
}
