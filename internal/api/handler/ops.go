package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/pushbucket/pushbucket/internal/api/models"
	"github.com/pushbucket/pushbucket/internal/api/response"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	db        Pinger
	stats     *NotifyStats
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version, buildTime string, db Pinger, stats *NotifyStats) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		db:        db,
		stats:     stats,
	}
}

// HealthCheck handles GET /health, the liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   time.Now(),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /ready, the readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatusOK
	code := http.StatusOK
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			status = models.HealthStatusDegraded
			code = http.StatusServiceUnavailable
		}
	}

	response.JSON(w, r, code, models.Health{
		Status: status,
		Time:   time.Now(),
	})
}

// DispatchStats handles GET /ops/dispatch.
func (h *OpsHandler) DispatchStats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.stats.Snapshot())
}
