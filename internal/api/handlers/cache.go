package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/costcast/internal/cache"
)

// ForecastCacheInterface defines the cache operations exposed over HTTP
type ForecastCacheInterface interface {
	GetStats() cache.ForecastCacheStats
	LocalLen() int
	Clear(ctx context.Context) error
}

// CacheHandler handles cache monitoring endpoints
type CacheHandler struct {
	cache ForecastCacheInterface
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(forecastCache ForecastCacheInterface) *CacheHandler {
	return &CacheHandler{cache: forecastCache}
}

// GetCacheStats returns forecast cache hit/miss statistics
// @Summary Get cache statistics
// @Tags cache
// @Produce json
// @Router /api/v1/cache/stats [get]
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	stats := h.cache.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"local_hits":    stats.LocalHits,
			"redis_hits":    stats.RedisHits,
			"misses":        stats.Misses,
			"sets":          stats.Sets,
			"errors":        stats.Errors,
			"hit_rate":      stats.HitRate(),
			"local_entries": h.cache.LocalLen(),
		},
	})
}

// ClearCache removes every cached forecast
// @Summary Clear the forecast cache
// @Tags cache
// @Produce json
// @Router /api/v1/cache/clear [post]
func (h *CacheHandler) ClearCache(c *gin.Context) {
	if err := h.cache.Clear(c.Request.Context()); err != nil {
		respondError(c, err, "Failed to clear cache")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Forecast cache cleared",
	})
}
