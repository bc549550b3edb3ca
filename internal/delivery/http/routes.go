package http

import (
	"github.com/gin-gonic/gin"

	"noprime/redirector/internal/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg config.ServerConfig, handler *Handler) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	router := gin.New()

	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))

	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/state", handler.State)
		v1.POST("/toggle", handler.Toggle)
		v1.POST("/resolve", handler.Resolve)
		v1.POST("/extract", handler.Extract)

		tabs := v1.Group("/tabs")
		{
			tabs.GET("", handler.ListTabs)
			tabs.POST("", handler.OpenTab)
			tabs.GET("/:id", handler.GetTab)
			tabs.DELETE("/:id", handler.CloseTab)
			tabs.GET("/:id/product", handler.TabProduct)
			tabs.POST("/:id/query", handler.QueryTab)
			tabs.POST("/:id/navigate", handler.NavigateTab)
			tabs.POST("/:id/dismiss", handler.DismissBanner)
		}
	}

	return router
}
