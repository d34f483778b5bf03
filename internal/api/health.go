package api

import (
	"context"
	"net/http"
	"time"

	"github.com/paddockcloud/lt-engine/internal/bus"
	"github.com/paddockcloud/lt-engine/internal/database"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// EngineStatus exposes the pipeline's health to the endpoint. Nil when
// the process runs no pipeline (relay edge).
type EngineStatus interface {
	Healthy() bool
}

type HealthHandler struct {
	db        *database.DB
	bus       *bus.Client
	engine    EngineStatus
	version   string
	startTime time.Time
}

func NewHealthHandler(db *database.DB, b *bus.Client, engine EngineStatus, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		bus:       b,
		engine:    engine,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			checks["database"] = "down: " + err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	if h.bus != nil {
		if err := h.bus.HealthCheck(ctx); err != nil {
			checks["bus"] = "down: " + err.Error()
			healthy = false
		} else {
			checks["bus"] = "ok"
		}
	}

	if h.engine != nil {
		if h.engine.Healthy() {
			checks["pipeline"] = "ok"
		} else {
			checks["pipeline"] = "degraded"
			healthy = false
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	WriteJSON(w, code, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
