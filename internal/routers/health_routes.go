package routers

import (
	"github.com/go-chi/chi/v5"

	"peerprep/interview/internal/handlers"
	"peerprep/interview/internal/metrics"
)

func HealthRoutes(router *chi.Mux, healthHandler *handlers.HealthHandler) {
	router.Get("/healthz", healthHandler.HealthzHandler)
	router.Get("/readyz", healthHandler.ReadyzHandler)
	router.Get("/api/v1/interview/healthz", healthHandler.HealthzHandler)
	router.Handle("/metrics", metrics.Handler())
}
