package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"workoutnet/internal/handler"
	"workoutnet/internal/metrics"
	"workoutnet/internal/middleware"
)

// SetupRouter wires the read-only API over the run history.
func SetupRouter(store handler.RunStore) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logger(), gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "workoutnet API is running",
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	runHandler := handler.NewRunHandler(store)
	api := r.Group("/api/v1")
	{
		runs := api.Group("/runs")
		{
			runs.GET("", runHandler.ListRuns)
			runs.GET("/:id", runHandler.GetRun)
			runs.GET("/:id/epochs", runHandler.GetEpochs)
		}
	}

	return r
}
