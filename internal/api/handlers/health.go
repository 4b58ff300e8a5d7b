package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

type HealthHandler struct {
	WorkerID string
	Version  string
	probes   map[string]Probe
}

func NewHealthHandler(workerID, version string, probes map[string]Probe) *HealthHandler {
	return &HealthHandler{WorkerID: workerID, Version: version, probes: probes}
}

type HealthResponse struct {
	Status   string            `json:"status" example:"healthy"`
	WorkerID string            `json:"worker_id" example:"avc-gate-1"`
	Checks   map[string]string `json:"checks,omitempty"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id" example:"avc-gate-1"`
	Status       string   `json:"status" example:"running"`
	Version      string   `json:"version" example:"1.0.0"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description Check the worker and its dependencies; 503 when any is down
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "healthy", WorkerID: h.WorkerID, Checks: make(map[string]string, len(names))}
	code := http.StatusOK
	for _, name := range names {
		if err := h.probes[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	c.JSON(code, resp)
}

// @Summary Worker information
// @Tags health
// @Produce json
// @Success 200 {object} WorkerInfoResponse
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   "running",
		Version:  h.Version,
		Capabilities: []string{
			"overhead_axle_counting",
			"frontal_tire_detection",
			"vehicle_classification",
			"mjpeg_streaming",
			"websocket_events",
		},
	})
}
