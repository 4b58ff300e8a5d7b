package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	WorkerID string
	started  time.Time
	sections map[string]func() any
}

// NewSystemHandler creates a new system handler. Each section is rendered
// under its key in the stats response.
func NewSystemHandler(workerID string, sections map[string]func() any) *SystemHandler {
	return &SystemHandler{
		WorkerID: workerID,
		started:  time.Now(),
		sections: sections,
	}
}

// @Summary Get system stats
// @Description Runtime metrics plus per-camera processing and capture status
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := gin.H{
		"worker_id":      h.WorkerID,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"memory_mb":      m.Alloc / 1024 / 1024,
		"cpu_cores":      runtime.NumCPU(),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
	}
	for name, fn := range h.sections {
		stats[name] = fn()
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"stats":     stats,
		"timestamp": time.Now().Unix(),
	})
}
