package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/costcast/internal/api/handlers"
	"github.com/irfndi/costcast/internal/middleware"
)

// Dependencies are the collaborators the routes are wired to. Cache, Redis,
// AI and Metrics are optional.
type Dependencies struct {
	Forecasts handlers.ForecastService
	Cache     handlers.ForecastCacheInterface
	DB        handlers.HealthChecker
	Redis     handlers.HealthChecker
	AI        handlers.HealthChecker
	Metrics   http.Handler
	APIKey    string
	Version   string
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	health := handlers.NewHealthHandler(deps.DB, deps.Redis, deps.AI, deps.Version)
	router.GET("/health", health.HealthCheck)
	router.GET("/health/ready", health.ReadinessCheck)
	router.GET("/health/live", health.LivenessCheck)

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	apiKey := middleware.NewAPIKeyMiddleware(deps.APIKey)
	forecasts := handlers.NewForecastHandler(deps.Forecasts)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/forecasts", forecasts.CreateForecast)

		clients := v1.Group("/clients/:client_id")
		{
			clients.GET("/forecast", forecasts.GetClientForecast)
			clients.GET("/forecast/latest", forecasts.GetLatestForecast)
			clients.POST("/costs", apiKey.RequireAPIKey(), forecasts.IngestCosts)
		}

		if deps.Cache != nil {
			cacheHandler := handlers.NewCacheHandler(deps.Cache)
			cache := v1.Group("/cache")
			{
				cache.GET("/stats", cacheHandler.GetCacheStats)
				cache.POST("/clear", apiKey.RequireAPIKey(), cacheHandler.ClearCache)
			}
		}
	}
}
