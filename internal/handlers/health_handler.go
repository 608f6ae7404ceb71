package handlers

import (
	"context"
	"net/http"
	"time"

	"peerprep/interview/internal/utils"
)

const readinessTimeout = 2 * time.Second

type ReadinessCheck struct {
	Status  string `json:"status"` // "ok" | "failed"
	Message string `json:"message,omitempty"`
}

type ReadinessResponse struct {
	Status  string                    `json:"status"`  // "ready" | "not_ready"
	Service string                    `json:"service"` // Service name
	Checks  map[string]ReadinessCheck `json:"checks"`
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	version  string
	database Pinger
	// optional dependencies: reported, but a failure does not make the service unready
	cache    Pinger
	detector Pinger
}

func NewHealthHandler(version string, database, cache, detector Pinger) *HealthHandler {
	return &HealthHandler{version: version, database: database, cache: cache, detector: detector}
}

func (handler *HealthHandler) HealthzHandler(writer http.ResponseWriter, request *http.Request) {
	utils.JSON(writer, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "interview",
		"version": handler.version,
	})
}

func (handler *HealthHandler) ReadyzHandler(writer http.ResponseWriter, request *http.Request) {
	ctx, cancel := context.WithTimeout(request.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]ReadinessCheck)
	ready := true

	if handler.database == nil {
		checks["database"] = ReadinessCheck{Status: "failed", Message: "Database not initialized"}
		ready = false
	} else if err := handler.database.Ping(ctx); err != nil {
		checks["database"] = ReadinessCheck{Status: "failed", Message: err.Error()}
		ready = false
	} else {
		checks["database"] = ReadinessCheck{Status: "ok"}
	}

	if handler.cache != nil {
		checks["cache"] = ping(ctx, handler.cache)
	}
	if handler.detector != nil {
		checks["detector"] = ping(ctx, handler.detector)
	}

	response := ReadinessResponse{Service: "interview", Checks: checks}
	if ready {
		response.Status = "ready"
		utils.JSON(writer, http.StatusOK, response)
	} else {
		response.Status = "not_ready"
		utils.JSON(writer, http.StatusServiceUnavailable, response)
	}
}

func ping(ctx context.Context, p Pinger) ReadinessCheck {
	if err := p.Ping(ctx); err != nil {
		return ReadinessCheck{Status: "failed", Message: err.Error()}
	}
	return ReadinessCheck{Status: "ok"}
}
