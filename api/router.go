package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/api/handlers"
	"github.com/yourusername/dl-progress/api/middleware"
	"github.com/yourusername/dl-progress/internal/app"
	"github.com/yourusername/dl-progress/internal/domain"
)

// Dependencies bundles what the HTTP layer needs
type Dependencies struct {
	Registry    *app.Registry
	Dispatcher  *app.Dispatcher
	QueueMgr    *app.QueueManager
	FetchMgr    *app.FetchManager
	Snapshots   domain.SnapshotRepository // nil when persistence is disabled
	Logger      *zap.Logger
	LogsDir     string
	DownloadDir string
}

// SetupRouter sets up the HTTP router
func SetupRouter(deps Dependencies) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(deps.QueueMgr, deps.Dispatcher, deps.DownloadDir)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		progressHandler := handlers.NewProgressHandler(deps.Registry, deps.Dispatcher, deps.Snapshots, deps.Logger)
		streamHandler := handlers.NewProgressWebSocketHandler(deps.Registry, deps.Logger)
		progress := v1.Group("/progress")
		{
			progress.GET("", progressHandler.ListProgress)
			progress.GET("/stream", streamHandler.HandleWebSocket)
			progress.GET("/:id", progressHandler.GetProgress)
			progress.DELETE("/:id", progressHandler.DeleteProgress)
		}

		fetchHandler := handlers.NewFetchHandler(deps.QueueMgr, deps.FetchMgr, deps.Logger)
		fetches := v1.Group("/fetches")
		{
			fetches.POST("", fetchHandler.AddFetch)
			fetches.GET("", fetchHandler.ListFetches)
			fetches.GET("/stats", fetchHandler.GetStats)
			fetches.GET("/:id", fetchHandler.GetFetch)
			fetches.POST("/:id/cancel", fetchHandler.CancelFetch)
			fetches.POST("/:id/retry", fetchHandler.RetryFetch)
			fetches.DELETE("/:id", fetchHandler.DeleteFetch)
		}

		if deps.LogsDir != "" {
			logHandler := handlers.NewLogHandler(deps.LogsDir)
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/search", logHandler.SearchLogs)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "not found"})
	})

	return router
}
