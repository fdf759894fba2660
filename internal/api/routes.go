package api

import (
	"github.com/JustJay7/court-sync/internal/cache"
	"github.com/JustJay7/court-sync/internal/courtsync"
	"github.com/JustJay7/court-sync/internal/metrics"
	"github.com/JustJay7/court-sync/internal/repository"
	"github.com/JustJay7/court-sync/pkg/logger"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all application routes
func SetupRoutes(router *gin.Engine, repo *repository.Repository, sync *courtsync.Service, tokens cache.TokenCache, m *metrics.Metrics, logger *logger.Logger) {
	h := NewHandlers(repo, sync, tokens, logger)

	router.GET("/metrics", gin.WrapH(m.Handler()))

	api := router.Group("/api")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/cache/stats", h.CacheStats)

		courts := api.Group("/courts/:id")
		{
			courts.POST("/query", h.QueryCourt)
			courts.POST("/sync", h.SyncCourt)
			courts.GET("/test", h.TestCourt)
		}

		api.POST("/schedules/run", h.RunSchedules)

		api.GET("/movements", h.ListMovements)
		api.POST("/movements/import", h.ImportMovements)
		api.POST("/movements/:id/import", h.ImportMovement)
		api.POST("/movements/:id/ignore", h.IgnoreMovement)

		api.GET("/sync-logs", h.ListSyncLogs)
		api.GET("/queries", h.ListQueries)
		api.GET("/statistics", h.Statistics)
	}
}
