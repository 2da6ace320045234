package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var startTime = time.Now()

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusDisabled  = "disabled"
)

// HealthChecker is implemented by the database, Redis and AI clients
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// HealthHandler reports dependency and host status. A nil optional
// dependency is reported as disabled.
type HealthHandler struct {
	db      HealthChecker
	redis   HealthChecker
	ai      HealthChecker
	version string
	timeout time.Duration
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	System    SystemInfo        `json:"system"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

// SystemInfo describes the host the service runs on
type SystemInfo struct {
	Goroutines     int     `json:"goroutines"`
	LogicalCPUs    int     `json:"logical_cpus,omitempty"`
	MemoryTotalMB  uint64  `json:"memory_total_mb,omitempty"`
	MemoryUsedPct  float64 `json:"memory_used_percent,omitempty"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
}

func NewHealthHandler(db, redis, ai HealthChecker, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   redis,
		ai:      ai,
		version: version,
		timeout: 5 * time.Second,
	}
}

func check(ctx context.Context, checker HealthChecker) string {
	if checker == nil {
		return statusDisabled
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return statusUnhealthy + ": " + err.Error()
	}
	return statusHealthy
}

// HealthCheck reports unhealthy (503) when the database is down and
// degraded (200) when only the cache or the AI service is down.
// @Summary Service health
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	services := map[string]string{
		"database": check(ctx, h.db),
		"redis":    check(ctx, h.redis),
		"ai":       check(ctx, h.ai),
	}
	if h.db == nil {
		services["database"] = statusUnhealthy + ": not configured"
	}

	overall := statusHealthy
	for name, status := range services {
		if status == statusHealthy || status == statusDisabled {
			continue
		}
		if name == "database" {
			overall = statusUnhealthy
			break
		}
		overall = statusDegraded
	}

	response := HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Services:  services,
		System:    systemInfo(ctx),
		Version:   h.version,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	}

	code := http.StatusOK
	if overall == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// ReadinessCheck succeeds only when the database is reachable
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if h.db == nil || h.db.HealthCheck(ctx) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

// LivenessCheck for container restarts
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func systemInfo(ctx context.Context) SystemInfo {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	info := SystemInfo{
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: ms.HeapAlloc,
	}
	if counts, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.LogicalCPUs = counts
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotalMB = vm.Total / 1024 / 1024
		info.MemoryUsedPct = vm.UsedPercent
	}
	return info
}
